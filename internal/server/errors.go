package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thebronway/domain-manager/internal/domain"
)

// domainError maps engine sentinel errors onto HTTP responses.
func domainError(name string, err error) error {
	switch {
	case errors.Is(err, domain.ErrDomainNotFound):
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("domain %s is not configured", name))
	case errors.Is(err, domain.ErrDDNSDisabled):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("DDNS is not enabled for %s", name))
	case errors.Is(err, domain.ErrAliasRecord):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s is an ALIAS record and cannot be updated", name))
	case errors.Is(err, domain.ErrNoPublicIP):
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"public IP could not be determined")
	case errors.Is(err, domain.ErrCertificateMissing):
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no certificate installed for %s", name))
	case errors.Is(err, domain.ErrBatchRunning):
		return echo.NewHTTPError(http.StatusConflict,
			"an SSL check is already running")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
