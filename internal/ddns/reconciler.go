package ddns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/internal/state"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// AliasPrefix marks a record value that is an indirection (e.g. a Route
// 53 alias target). Alias records are never targets of an update call.
const AliasPrefix = "ALIAS:"

// IsAlias reports whether a recorded value carries the alias sentinel.
func IsAlias(v string) bool {
	return strings.HasPrefix(v, AliasPrefix)
}

// Provider is the DNS provider client consumed by the reconciler.
// GetRecord returns the A-record value, a value carrying AliasPrefix for
// alias records, or domain.ErrRecordNotFound when no record exists.
type Provider interface {
	GetRecord(ctx context.Context, name string) (string, error)
	SetRecord(ctx context.Context, name, ip string) error
}

// Notifier fans a message out to the enabled channels.
type Notifier interface {
	Send(subject, body string)
}

// Reconciler performs one drift-detection-and-correction pass per cycle:
// resolve the public IP, compare it to each DDNS-enabled domain's record,
// and correct or alert according to the domain's flags.
type Reconciler struct {
	cfg       *config.Config
	store     *state.Store
	provider  Provider
	resolvers []Resolver
	notifier  Notifier
	log       *logger.Logger
	nowFn     func() time.Time
}

// NewReconciler wires a reconciler with its collaborators.
func NewReconciler(cfg *config.Config, store *state.Store, provider Provider, resolvers []Resolver, notifier Notifier) *Reconciler {
	r := &Reconciler{
		cfg:       cfg,
		store:     store,
		provider:  provider,
		resolvers: resolvers,
		notifier:  notifier,
		log:       logger.GetLogger(),
	}
	r.nowFn = func() time.Time { return time.Now().In(cfg.Location()) }
	return r
}

// Run executes one full reconciliation cycle. One domain's failure never
// aborts the batch; state is persisted once after the domain loop.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("Running DDNS update check...")

	publicIP, ok := r.resolvePublicIP(ctx)
	r.store.SetLastIPCheck(r.nowFn())

	if !ok {
		r.log.Error("DDNS update skipped: could not determine public IP")
		// Alert only on the known -> unknown transition, so a sustained
		// outage produces a single notification.
		if _, known := r.store.PublicIP(); known && r.cfg.Notifications.Enabled {
			r.notifier.Send(
				"DDNS IP Check FAILED",
				"Failed to retrieve the host's public IP address. All IP providers failed.",
			)
		}
		r.store.ClearPublicIP()
		_ = r.store.Save()
		return
	}

	if current, known := r.store.PublicIP(); !known || current != publicIP {
		r.log.Info("Public IP has changed", "new", publicIP, "old", valueOr(current, known))
		r.store.SetPublicIP(publicIP)
	} else {
		r.log.Info("Public IP has not changed", "ip", publicIP)
	}

	for _, d := range r.cfg.Domains {
		r.store.EnsureDomain(d.Name)
		if !d.DDNS {
			continue
		}
		r.reconcileDomain(ctx, d, publicIP)
	}

	_ = r.store.Save()
}

func (r *Reconciler) reconcileDomain(ctx context.Context, d config.DomainSpec, publicIP string) {
	sendAlerts := r.cfg.Notifications.Enabled && d.NotificationsEnabled()

	recorded, err := r.provider.GetRecord(ctx, d.Name)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		r.log.Error("Failed to read DNS record", "domain", d.Name, "error", err)
		if sendAlerts {
			r.notifier.Send(
				fmt.Sprintf("DDNS Record Read FAILED for %s", d.Name),
				fmt.Sprintf("Reading the DNS record for %s failed: %v\n\nPlease check the application logs and provider permissions.", d.Name, err),
			)
		}
		return
	}

	if err != nil {
		// No record yet: remember the absence and fall through to the
		// mismatch handling so auto-update can create the record.
		r.store.SetRecordedIP(d.Name, nil)
		recorded = ""
	} else {
		r.store.SetRecordedIP(d.Name, &recorded)
	}

	if IsAlias(recorded) {
		r.log.Warn("Skipping update, domain is an ALIAS record", "domain", d.Name)
		return
	}

	if recorded == publicIP {
		r.log.Info("IPs match, no update needed", "domain", d.Name, "ip", publicIP)
		return
	}

	r.log.Info("IP mismatch detected", "domain", d.Name, "recorded", recorded, "public", publicIP)

	if !d.AutoUpdateEnabled() {
		r.log.Info("Auto-update is disabled, IP was not updated", "domain", d.Name)
		if sendAlerts {
			r.notifier.Send(
				fmt.Sprintf("DDNS IP Mismatch DETECTED for %s", d.Name),
				fmt.Sprintf("An IP mismatch was detected for %s, but auto-update is disabled.\n\nPlease update the IP manually.\n\nPublic IP: %s\nRecorded IP: %s",
					d.Name, publicIP, orNA(recorded)),
			)
		}
		return
	}

	if err := r.provider.SetRecord(ctx, d.Name, publicIP); err != nil {
		r.log.Error("Failed to update DNS record", "domain", d.Name, "error", err)
		if sendAlerts {
			r.notifier.Send(
				fmt.Sprintf("DDNS IP Update FAILED for %s", d.Name),
				fmt.Sprintf("The IP address update for %s failed. Please check the application logs and provider permissions.", d.Name),
			)
		}
		return
	}

	// Record the update only after the provider confirms it.
	r.log.Info("Successfully updated record", "domain", d.Name, "ip", publicIP)
	r.store.SetRecordedIP(d.Name, &publicIP)
	r.store.SetLastUpdate(d.Name, r.nowFn())
	if sendAlerts {
		r.notifier.Send(
			fmt.Sprintf("DDNS IP Updated for %s", d.Name),
			fmt.Sprintf("The IP address for %s has been successfully updated.\n\nNew IP: %s\nOld IP: %s",
				d.Name, publicIP, orNA(recorded)),
		)
	}
}

// ForceUpdate updates a single domain's record to the known public IP,
// bypassing the auto_update flag. Called from the trigger API.
func (r *Reconciler) ForceUpdate(ctx context.Context, name string) error {
	d, ok := r.cfg.Domain(name)
	if !ok {
		return domain.ErrDomainNotFound
	}
	if !d.DDNS {
		return domain.ErrDDNSDisabled
	}

	publicIP, known := r.store.PublicIP()
	if !known {
		return domain.ErrNoPublicIP
	}

	sendAlerts := r.cfg.Notifications.Enabled && d.NotificationsEnabled()

	oldIP := ""
	if st, ok := r.store.Domain(name); ok && st.RecordedIP != nil {
		oldIP = *st.RecordedIP
	}
	if IsAlias(oldIP) {
		return domain.ErrAliasRecord
	}

	r.log.Info("Forcing record update", "domain", name, "ip", publicIP)
	if err := r.provider.SetRecord(ctx, name, publicIP); err != nil {
		if sendAlerts {
			r.notifier.Send(
				fmt.Sprintf("DDNS IP Manual Update FAILED for %s", name),
				fmt.Sprintf("A manual IP address update for %s failed. Please check the application logs and provider permissions.", name),
			)
		}
		return fmt.Errorf("force update %s: %w", name, err)
	}

	r.store.SetRecordedIP(name, &publicIP)
	r.store.SetLastUpdate(name, r.nowFn())
	_ = r.store.Save()

	if sendAlerts {
		r.notifier.Send(
			fmt.Sprintf("DDNS IP Manually Updated for %s", name),
			fmt.Sprintf("The IP address for %s has been manually updated.\n\nNew IP: %s\nOld IP: %s",
				name, publicIP, orNA(oldIP)),
		)
	}
	return nil
}

// RefreshRecordedIP re-reads a single domain's record value without
// performing any update. Called from the trigger API.
func (r *Reconciler) RefreshRecordedIP(ctx context.Context, name string) (string, error) {
	recorded, err := r.provider.GetRecord(ctx, name)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		r.store.SetRecordedIP(name, nil)
		recorded = ""
	case err != nil:
		return "", fmt.Errorf("refresh recorded IP for %s: %w", name, err)
	default:
		r.store.SetRecordedIP(name, &recorded)
	}

	_ = r.store.Save()
	return recorded, nil
}

// resolvePublicIP tries each resolver in order and returns the first
// successful answer.
func (r *Reconciler) resolvePublicIP(ctx context.Context) (string, bool) {
	for _, res := range r.resolvers {
		ip, err := res.Resolve(ctx)
		if err != nil {
			r.log.Warn("Failed to get IP from provider", "provider", res.Name(), "error", err)
			continue
		}
		r.log.Info("Public IP retrieved", "provider", res.Name(), "ip", ip)
		return ip, true
	}
	r.log.Error("All public IP providers failed")
	return "", false
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func valueOr(s string, ok bool) string {
	if !ok {
		return "N/A"
	}
	return s
}
