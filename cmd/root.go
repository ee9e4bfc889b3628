package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "domain-manager",
	Short: "Dynamic DNS and SSL certificate manager for Route 53 domains",
	Long: `domain-manager keeps A records for your domains pointed at your current
public IP and renews their Let's Encrypt certificates via the DNS-01
challenge, with notifications over mail and chat webhooks.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ./domain-manager.yaml)")
}

func initConfig() {
	// Secrets may live in a .env file next to the binary.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("domain-manager")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/config")
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(homeDir + "/.domain-manager")
		}
	}

	viper.AutomaticEnv()
}
