package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/thebronway/domain-manager/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Generate a signed JWT for the trigger API, using the auth secret from
the settings file or the API_AUTH_SECRET environment variable.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 365*24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	secret := cfg.Server.AuthSecret
	if secret == "" {
		return fmt.Errorf("no auth secret configured; set server.auth_secret or API_AUTH_SECRET")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "api",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Println(signed)
	return nil
}
