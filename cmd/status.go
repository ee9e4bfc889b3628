package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/state"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(18)
	domainStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted engine state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := state.NewStore(cfg.StateFile())
	store.Load()
	snap := store.Snapshot()

	fmt.Println(titleStyle.Render("domain-manager"))
	fmt.Println(labelStyle.Render("Public IP:") + renderValue(snap.PublicIP))
	fmt.Println(labelStyle.Render("Last IP check:") + renderTime(snap.LastIPCheckTime, cfg))
	fmt.Println()

	for _, d := range cfg.Domains {
		fmt.Println(domainStyle.Render(d.Name))

		st := snap.DomainStates[d.Name]
		if st == nil {
			st = &state.DomainState{}
		}

		if d.DDNS {
			fmt.Println(labelStyle.Render("  Recorded IP:") + renderValue(st.RecordedIP))
			fmt.Println(labelStyle.Render("  Last update:") + renderTime(st.LastUpdateTime, cfg))
		}
		if d.SSL.Enabled {
			fmt.Println(labelStyle.Render("  Cert expires:") + renderExpiration(st.SSLExpiration, cfg))
			fmt.Println(labelStyle.Render("  Last renewal:") + renderTime(st.SSLLastRenew, cfg))
		}
		fmt.Println()
	}

	return nil
}

func renderValue(v *string) string {
	if v == nil || *v == "" {
		return warnStyle.Render("unknown")
	}
	return okStyle.Render(*v)
}

func renderTime(t *time.Time, cfg *config.Config) string {
	if t == nil {
		return warnStyle.Render("never")
	}
	return t.In(cfg.Location()).Format("2006-01-02 15:04:05")
}

func renderExpiration(t *time.Time, cfg *config.Config) string {
	if t == nil {
		return warnStyle.Render("no certificate")
	}
	remaining := time.Until(*t)
	text := fmt.Sprintf("%s (%d days left)",
		t.In(cfg.Location()).Format("2006-01-02"), int(remaining.Hours()/24))
	if remaining < 30*24*time.Hour {
		return warnStyle.Render(text)
	}
	return okStyle.Render(text)
}
