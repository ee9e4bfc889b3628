package certs

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	route53dns "github.com/go-acme/lego/v4/providers/dns/route53"
	"github.com/go-acme/lego/v4/registration"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// acmeUser implements the registration.User interface.
type acmeUser struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.Email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.Registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

type accountFile struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	PrivateKey   string                 `json:"private_key"`
}

// AcmeIssuer obtains and renews certificates through the ACME DNS-01
// challenge against Route 53. The account key and registration persist
// as JSON in the data dir. Orders run to completion or failure with no
// enforced timeout.
type AcmeIssuer struct {
	cfg *config.Config
	log *logger.Logger

	mu      sync.Mutex
	user    *acmeUser
	clients map[string]*lego.Client // keyed by CA directory URL
	nowFn   func() time.Time
}

// NewAcmeIssuer builds an issuer. The ACME client is created lazily on
// first use so the engine can start without CA connectivity.
func NewAcmeIssuer(cfg *config.Config) *AcmeIssuer {
	return &AcmeIssuer{
		cfg:     cfg,
		log:     logger.GetLogger(),
		clients: make(map[string]*lego.Client),
		nowFn:   func() time.Time { return time.Now().In(cfg.Location()) },
	}
}

// Issue obtains and installs a new certificate for the domain, covering
// the wildcard name as well when requested.
func (a *AcmeIssuer) Issue(_ context.Context, name string, wildcard bool) (string, error) {
	domains := []string{name}
	if wildcard {
		domains = append(domains, "*."+name)
	}

	a.log.Info("Attempting to obtain certificate", "domain", name, "wildcard", wildcard)

	res, err := a.obtain(domains)
	if err != nil {
		return "", fmt.Errorf("obtain certificate for %s: %w", name, err)
	}

	if err := a.install(name, res); err != nil {
		return "", err
	}

	out := fmt.Sprintf("certificate obtained for %s (%v); expires %s",
		name, domains, a.expirationText(res.Certificate))
	a.writeOpLog(name, out)
	return out, nil
}

// Renew checks whether the installed certificate is within the renewal
// window and re-issues it when due. For dry runs the order is placed
// against the staging CA and the result is discarded, so problems still
// surface without mutating the installed files.
func (a *AcmeIssuer) Renew(_ context.Context, name string, dryRun bool) (string, error) {
	path := filepath.Join(a.cfg.CertsDir, name, "fullchain.pem")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrCertificateMissing
		}
		return "", fmt.Errorf("read certificate for %s: %w", name, err)
	}

	parsed, err := certcrypto.ParsePEMBundle(data)
	if err != nil || len(parsed) == 0 {
		return "", fmt.Errorf("parse certificate for %s: %w", name, err)
	}
	leaf := parsed[0]

	window := time.Duration(a.cfg.CertManagement.RenewWithinDays) * 24 * time.Hour
	remaining := leaf.NotAfter.Sub(a.nowFn())
	if remaining > window {
		out := fmt.Sprintf("certificate for %s not yet due for renewal (expires %s)",
			name, leaf.NotAfter.In(a.cfg.Location()).Format("2006-01-02"))
		return out, nil
	}

	if dryRun {
		a.log.Info("Running renewal check (DRY RUN)", "domain", name)
		if _, err := a.obtainStaging(leaf.DNSNames); err != nil {
			return "", fmt.Errorf("dry-run renewal for %s: %w", name, err)
		}
		out := fmt.Sprintf("dry run successful for %s; certificate is due and can be renewed", name)
		a.writeOpLog(name, out)
		return out, nil
	}

	a.log.Info("Running renewal", "domain", name)
	res, err := a.obtain(leaf.DNSNames)
	if err != nil {
		return "", fmt.Errorf("renew certificate for %s: %w", name, err)
	}
	if err := a.install(name, res); err != nil {
		return "", err
	}

	out := fmt.Sprintf("certificate for %s %s; expires %s",
		name, renewedMarker, a.expirationText(res.Certificate))
	a.writeOpLog(name, out)
	return out, nil
}

func (a *AcmeIssuer) obtain(domains []string) (*certificate.Resource, error) {
	caURL := lego.LEDirectoryProduction
	if a.cfg.CertManagement.Staging {
		caURL = lego.LEDirectoryStaging
	}
	return a.obtainFrom(caURL, domains)
}

func (a *AcmeIssuer) obtainStaging(domains []string) (*certificate.Resource, error) {
	return a.obtainFrom(lego.LEDirectoryStaging, domains)
}

func (a *AcmeIssuer) obtainFrom(caURL string, domains []string) (*certificate.Resource, error) {
	client, err := a.client(caURL)
	if err != nil {
		return nil, err
	}
	return client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
}

// client returns a registered lego client for the given CA, creating and
// caching it on first use.
func (a *AcmeIssuer) client(caURL string) (*lego.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[caURL]; ok {
		return c, nil
	}

	user, err := a.loadOrCreateUser()
	if err != nil {
		return nil, err
	}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = caURL
	legoCfg.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("create ACME client: %w", err)
	}

	r53cfg := route53dns.NewDefaultConfig()
	r53cfg.AccessKeyID = a.cfg.AWS.AccessKeyID
	r53cfg.SecretAccessKey = a.cfg.AWS.SecretAccessKey
	r53cfg.Region = a.cfg.AWS.Region

	provider, err := route53dns.NewDNSProviderConfig(r53cfg)
	if err != nil {
		return nil, fmt.Errorf("create Route 53 challenge provider: %w", err)
	}
	if err := client.Challenge.SetDNS01Provider(provider); err != nil {
		return nil, fmt.Errorf("set DNS-01 provider: %w", err)
	}

	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("register ACME account: %w", err)
		}
		user.Registration = reg
		if err := a.saveUser(user); err != nil {
			// Registration itself succeeded; losing the file only costs a
			// re-registration next start.
			a.log.Error("Failed to save ACME account", "error", err)
		}
		a.log.Info("ACME account registered", "email", user.Email, "uri", reg.URI)
	}

	a.clients[caURL] = client
	return client, nil
}

func (a *AcmeIssuer) loadOrCreateUser() (*acmeUser, error) {
	if a.user != nil {
		return a.user, nil
	}

	path := a.cfg.AccountFile()
	raw, err := os.ReadFile(path)
	if err == nil {
		var af accountFile
		if err := json.Unmarshal(raw, &af); err != nil {
			return nil, fmt.Errorf("parse ACME account file: %w", err)
		}
		key, err := certcrypto.ParsePEMPrivateKey([]byte(af.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse ACME account key: %w", err)
		}
		a.user = &acmeUser{Email: af.Email, Registration: af.Registration, key: key}
		a.log.Debug("Loaded existing ACME account", "email", af.Email)
		return a.user, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read ACME account file: %w", err)
	}

	a.log.Info("No existing ACME account found, creating new one", "email", a.cfg.CertManagement.Email)
	key, err := certcrypto.GeneratePrivateKey(certcrypto.RSA2048)
	if err != nil {
		return nil, fmt.Errorf("generate ACME account key: %w", err)
	}

	a.user = &acmeUser{Email: a.cfg.CertManagement.Email, key: key}
	if err := a.saveUser(a.user); err != nil {
		return nil, err
	}
	return a.user, nil
}

func (a *AcmeIssuer) saveUser(u *acmeUser) error {
	af := accountFile{
		Email:        u.Email,
		Registration: u.Registration,
		PrivateKey:   string(certcrypto.PEMEncode(u.key)),
	}
	raw, err := json.MarshalIndent(af, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize ACME account: %w", err)
	}
	if err := os.WriteFile(a.cfg.AccountFile(), raw, 0o600); err != nil {
		return fmt.Errorf("write ACME account file: %w", err)
	}
	return nil
}

func (a *AcmeIssuer) install(name string, res *certificate.Resource) error {
	dir := filepath.Join(a.cfg.CertsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cert dir for %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fullchain.pem"), res.Certificate, 0o600); err != nil {
		return fmt.Errorf("write fullchain.pem for %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "privkey.pem"), res.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("write privkey.pem for %s: %w", name, err)
	}
	return nil
}

func (a *AcmeIssuer) expirationText(certPEM []byte) string {
	parsed, err := certcrypto.ParsePEMBundle(certPEM)
	if err != nil || len(parsed) == 0 {
		return "unknown"
	}
	return parsed[0].NotAfter.In(a.cfg.Location()).Format("2006-01-02")
}

// writeOpLog records the outcome of an ACME operation as a timestamped
// per-domain log file; the cleanup task prunes these by retention.
func (a *AcmeIssuer) writeOpLog(name, text string) {
	dir := filepath.Join(a.cfg.CertsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.log.Warn("Could not create cert dir for op log", "domain", name, "error", err)
		return
	}
	fname := fmt.Sprintf("acme-%s.log", a.nowFn().Format("20060102-150405"))
	line := fmt.Sprintf("%s %s\n", a.nowFn().Format(time.RFC3339), text)
	if err := os.WriteFile(filepath.Join(dir, fname), []byte(line), 0o644); err != nil {
		a.log.Warn("Could not write ACME op log", "domain", name, "error", err)
	}
}
