package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initOutput string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a settings file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "domain-manager.yaml", "where to write the settings file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initOutput); err == nil {
		overwrite := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s already exists. Overwrite?", initOutput),
		}
		if err := survey.AskOne(prompt, &overwrite); err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
	}

	var answers struct {
		Timezone    string
		IPInterval  string
		CertEnabled bool
		Email       string
		Staging     bool
		Notify      bool
	}

	questions := []*survey.Question{
		{
			Name:   "timezone",
			Prompt: &survey.Input{Message: "Timezone (IANA name):", Default: "UTC"},
		},
		{
			Name: "ipinterval",
			Prompt: &survey.Select{
				Message: "How often should the public IP be checked?",
				Options: []string{"5m", "10m", "60m", "24h", "disabled"},
				Default: "5m",
			},
		},
		{
			Name:   "certenabled",
			Prompt: &survey.Confirm{Message: "Enable automatic SSL certificate renewal?", Default: true},
		},
		{
			Name:   "notify",
			Prompt: &survey.Confirm{Message: "Enable notifications?", Default: false},
		},
	}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	if answers.CertEnabled {
		if err := survey.AskOne(&survey.Input{Message: "Email for the Let's Encrypt account:"}, &answers.Email, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		if err := survey.AskOne(&survey.Confirm{Message: "Use the staging CA (for testing)?", Default: false}, &answers.Staging); err != nil {
			return err
		}
	}

	type domainEntry struct {
		Name string `yaml:"name"`
		DDNS bool   `yaml:"ddns"`
		SSL  struct {
			Enabled  bool `yaml:"enabled"`
			Wildcard bool `yaml:"wildcard"`
		} `yaml:"ssl"`
	}

	var domains []domainEntry
	for {
		var d domainEntry
		if err := survey.AskOne(&survey.Input{Message: "Domain name:"}, &d.Name, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		if err := survey.AskOne(&survey.Confirm{Message: "Keep its A record pointed at this host (DDNS)?", Default: true}, &d.DDNS); err != nil {
			return err
		}
		if err := survey.AskOne(&survey.Confirm{Message: "Manage an SSL certificate for it?", Default: true}, &d.SSL.Enabled); err != nil {
			return err
		}
		if d.SSL.Enabled {
			if err := survey.AskOne(&survey.Confirm{Message: "Include the wildcard name (*.domain)?", Default: false}, &d.SSL.Wildcard); err != nil {
				return err
			}
		}
		domains = append(domains, d)

		more := false
		if err := survey.AskOne(&survey.Confirm{Message: "Add another domain?", Default: false}, &more); err != nil {
			return err
		}
		if !more {
			break
		}
	}

	settings := map[string]any{
		"timezone":          answers.Timezone,
		"ip_check_interval": answers.IPInterval,
		"cert_management": map[string]any{
			"enabled": answers.CertEnabled,
			"email":   answers.Email,
			"staging": answers.Staging,
		},
		"notifications": map[string]any{
			"enabled": answers.Notify,
		},
		"domains": domains,
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("serialize settings: %w", err)
	}
	if err := os.WriteFile(initOutput, out, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	fmt.Printf("Wrote %s. Secrets (AWS keys, webhook URLs) belong in the environment or a .env file.\n", initOutput)
	return nil
}
