package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/ddns"
	"github.com/thebronway/domain-manager/internal/dnsprovider"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// buildProvider selects the DNS backend. PROVIDER=demo swaps Route 53
// for an in-memory store so the engine can be explored without AWS
// credentials.
func buildProvider(ctx context.Context, cfg *config.Config) (ddns.Provider, error) {
	if os.Getenv("PROVIDER") == "demo" {
		logger.GetLogger().Info("Using in-memory DNS provider (demo mode)")
		seed := make(map[string]string)
		for _, d := range cfg.Domains {
			if d.DDNS {
				seed[d.Name] = "203.0.113.10"
			}
		}
		return dnsprovider.NewMemory(seed), nil
	}

	provider, err := dnsprovider.NewRoute53(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("connect to Route 53: %w", err)
	}
	return provider, nil
}
