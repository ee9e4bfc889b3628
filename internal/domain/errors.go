package domain

import "errors"

// Domain errors represent business-level failure conditions shared across
// the engine. Absent-but-expected conditions (no certificate yet, no A
// record yet) are sentinels so callers can branch with errors.Is instead
// of matching error strings.
var (
	// Public IP resolution
	ErrNoPublicIP = errors.New("public IP could not be determined")

	// DNS provider
	ErrZoneNotFound   = errors.New("no hosted zone found for domain")
	ErrRecordNotFound = errors.New("no A record found for domain")
	ErrAliasRecord    = errors.New("record is an alias and cannot be updated")

	// Certificates
	ErrCertificateMissing = errors.New("certificate not found")
	ErrBatchRunning       = errors.New("certificate batch is already running")

	// DDNS entry points
	ErrDDNSDisabled   = errors.New("ddns is not enabled for domain")
	ErrDomainNotFound = errors.New("domain not found in configuration")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
