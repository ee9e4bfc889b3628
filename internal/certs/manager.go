package certs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/internal/state"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// renewedMarker is the phrase issuer output carries when a renewal
// actually happened; a "not yet due" no-op never contains it.
const renewedMarker = "renewed successfully"

const (
	shortPause = 5 * time.Second
	longPause  = 60 * time.Second
)

// Issuer is the certificate-issuance collaborator.
type Issuer interface {
	Issue(ctx context.Context, name string, wildcard bool) (string, error)
	Renew(ctx context.Context, name string, dryRun bool) (string, error)
}

// Notifier fans a message out to the enabled channels.
type Notifier interface {
	Send(subject, body string)
}

// Manager tracks certificate expirations and runs the renewal batch on a
// dedicated single-flight worker, paced to respect the CA's rate limits.
type Manager struct {
	cfg      *config.Config
	store    *state.Store
	issuer   Issuer
	reader   Reader
	notifier Notifier
	log      *logger.Logger

	running    atomic.Bool
	sleepFn    func(time.Duration)
	nowFn      func() time.Time
	shortPause time.Duration
	longPause  time.Duration
}

// NewManager wires a certificate lifecycle manager.
func NewManager(cfg *config.Config, store *state.Store, issuer Issuer, reader Reader, notifier Notifier) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      store,
		issuer:     issuer,
		reader:     reader,
		notifier:   notifier,
		log:        logger.GetLogger(),
		sleepFn:    time.Sleep,
		nowFn:      func() time.Time { return time.Now().In(cfg.Location()) },
		shortPause: shortPause,
		longPause:  longPause,
	}
}

// Running reports whether a batch worker is currently active.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// TriggerBatch starts the renewal batch on its own worker. If a batch is
// already running the trigger is dropped, never queued.
func (m *Manager) TriggerBatch() error {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("SSL batch already running, trigger dropped")
		return domain.ErrBatchRunning
	}

	go func() {
		defer m.running.Store(false)
		// The batch is not cancellable once started; multi-hour pacing
		// must not die with the caller's request context.
		m.runBatch(context.Background())
	}()

	return nil
}

// runBatch iterates SSL-enabled domains in configuration order, checking
// each for renewal and persisting state after every domain so partial
// progress survives a restart mid-run.
func (m *Manager) runBatch(ctx context.Context) {
	m.log.Info("Running SSL renewal checks...")

	domains := m.cfg.SSLDomains()
	processed := 0

	for i, d := range domains {
		if _, err := m.reader.ExpirationOf(d.Name); err != nil {
			if errors.Is(err, domain.ErrCertificateMissing) {
				// Initial issuance is an explicit user action, never automatic.
				m.log.Info("Skipping renewal check, certificate is missing", "domain", d.Name)
			} else {
				m.log.Error("Failed to inspect certificate", "domain", d.Name, "error", err)
			}
			continue
		}

		m.checkDomain(ctx, d)
		m.refreshExpiration(d.Name)
		_ = m.store.Save()

		processed++
		if i < len(domains)-1 {
			if processed%10 == 0 {
				m.sleepFn(m.longPause)
			} else {
				m.sleepFn(m.shortPause)
			}
		}
	}

	m.log.Info("SSL renewal checks complete", "processed", processed)
}

func (m *Manager) checkDomain(ctx context.Context, d config.DomainSpec) {
	dryRun := !d.AutoUpdateEnabled()
	sendAlerts := m.cfg.Notifications.Enabled && d.NotificationsEnabled()

	m.log.Info("Checking for SSL renewal", "domain", d.Name, "auto_update", !dryRun)

	out, err := m.issuer.Renew(ctx, d.Name, dryRun)
	if err != nil {
		m.log.Error("SSL renewal check failed", "domain", d.Name, "error", err)
		if sendAlerts {
			m.notifier.Send(
				fmt.Sprintf("SSL Certificate Renewal FAILED for %s", d.Name),
				fmt.Sprintf("The renewal check for %s failed. See logs for details.\n\nError: %v\n\nOutput:\n%s", d.Name, err, out),
			)
		}
		return
	}

	m.log.Info("SSL renewal check completed", "domain", d.Name, "output", out)

	if strings.Contains(out, renewedMarker) {
		m.store.SetSSLLastRenew(d.Name, m.nowFn())
		if sendAlerts {
			m.notifier.Send(
				"SSL Certificate Renewed Successfully",
				fmt.Sprintf("SSL certificate for %s was successfully renewed.\n\nOutput:\n%s", d.Name, out),
			)
		}
	}
}

// refreshExpiration re-reads the certificate expiration regardless of the
// check's outcome and stores the result.
func (m *Manager) refreshExpiration(name string) {
	exp, err := m.reader.ExpirationOf(name)
	switch {
	case err == nil:
		m.store.SetSSLExpiration(name, &exp)
	case errors.Is(err, domain.ErrCertificateMissing):
		m.store.SetSSLExpiration(name, nil)
	default:
		m.log.Error("Failed to re-read certificate expiration", "domain", name, "error", err)
	}
}

// SeedExpirations runs once at startup: every SSL-enabled domain lacking
// a remembered expiration is probed once so the dashboard has data before
// the first daily check.
func (m *Manager) SeedExpirations() {
	m.log.Info("Checking for missing SSL certificate data...")

	for _, d := range m.cfg.SSLDomains() {
		m.store.EnsureDomain(d.Name)
		if st, ok := m.store.Domain(d.Name); ok && st.SSLExpiration != nil {
			continue
		}

		exp, err := m.reader.ExpirationOf(d.Name)
		if err != nil {
			if errors.Is(err, domain.ErrCertificateMissing) {
				m.log.Warn("Certificate not found, a user must create it manually", "domain", d.Name)
			} else {
				m.log.Error("Failed to read certificate", "domain", d.Name, "error", err)
			}
			continue
		}

		m.store.SetSSLExpiration(d.Name, &exp)
		m.log.Info("Found existing certificate", "domain", d.Name, "expires", exp.Format("2006-01-02"))
	}

	_ = m.store.Save()
}

// IssueCertificate performs a manual initial issuance for one domain,
// honoring its wildcard flag. Never called from the scheduler.
func (m *Manager) IssueCertificate(ctx context.Context, name string) error {
	d, ok := m.cfg.Domain(name)
	if !ok {
		return domain.ErrDomainNotFound
	}
	sendAlerts := m.cfg.Notifications.Enabled && d.NotificationsEnabled()

	m.log.Info("Manual SSL creation triggered", "domain", name, "wildcard", d.SSL.Wildcard)

	out, err := m.issuer.Issue(ctx, name, d.SSL.Wildcard)
	if err != nil {
		m.log.Error("Certificate creation failed", "domain", name, "error", err)
		if sendAlerts {
			m.notifier.Send(
				fmt.Sprintf("SSL Certificate Creation FAILED for %s", name),
				fmt.Sprintf("A manual attempt to create an SSL certificate failed.\n\nError: %v\n\nOutput:\n%s", err, out),
			)
		}
		return fmt.Errorf("issue certificate for %s: %w", name, err)
	}

	exp, rerr := m.reader.ExpirationOf(name)
	if rerr != nil {
		m.log.Error("Issuance reported success but certificate not readable", "domain", name, "error", rerr)
		if sendAlerts {
			m.notifier.Send(
				fmt.Sprintf("SSL Certificate Creation WARNING for %s", name),
				fmt.Sprintf("The issuance for %s reported success, but the new certificate could not be read. Please check the logs.", name),
			)
		}
		_ = m.store.Save()
		return nil
	}

	m.store.SetSSLExpiration(name, &exp)
	_ = m.store.Save()
	m.log.Info("New certificate installed", "domain", name, "expires", exp.Format("2006-01-02"))
	if sendAlerts {
		m.notifier.Send(
			fmt.Sprintf("SSL Certificate Created for %s", name),
			fmt.Sprintf("A new SSL certificate was successfully created for %s.\n\nIt expires on: %s", name, exp.Format("2006-01-02")),
		)
	}
	return nil
}
