package certs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/domain"
)

// Reader inspects installed certificates.
type Reader interface {
	// ExpirationOf returns the certificate's NotAfter instant, or
	// domain.ErrCertificateMissing when no certificate is installed.
	ExpirationOf(name string) (time.Time, error)
}

// FileReader reads fullchain.pem files from the certs directory.
type FileReader struct {
	certsDir string
	cfg      *config.Config
}

// NewFileReader builds a reader over the configured certs directory.
func NewFileReader(cfg *config.Config) *FileReader {
	return &FileReader{certsDir: cfg.CertsDir, cfg: cfg}
}

// ExpirationOf parses the domain's certificate chain and reports the leaf
// expiration in the configured timezone.
func (r *FileReader) ExpirationOf(name string) (time.Time, error) {
	path := filepath.Join(r.certsDir, name, "fullchain.pem")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, domain.ErrCertificateMissing
		}
		return time.Time{}, fmt.Errorf("read certificate %s: %w", path, err)
	}

	parsed, err := certcrypto.ParsePEMBundle(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse certificate %s: %w", path, err)
	}
	if len(parsed) == 0 {
		return time.Time{}, fmt.Errorf("certificate %s contains no PEM blocks", path)
	}

	return parsed[0].NotAfter.In(r.cfg.Location()), nil
}
