package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebronway/domain-manager/internal/config"
)

func TestCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		retention string
		want      time.Time
	}{
		{"10 days", time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)},
		{"2 weeks", time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)},
		{"3 months", time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC)},
		{"1 year", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		{"1 day", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.retention, func(t *testing.T) {
			got, err := Cutoff(now, tt.retention)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCutoffRejectsGarbage(t *testing.T) {
	now := time.Now()
	for _, bad := range []string{"", "3", "months", "three months", "3 fortnights", "3 months ago"} {
		_, err := Cutoff(now, bad)
		assert.Error(t, err, "retention %q should be rejected", bad)
	}
}

func TestRunDeletesOnlyOldACMELogs(t *testing.T) {
	certsDir := t.TempDir()
	domainDir := filepath.Join(certsDir, "example.com")
	require.NoError(t, os.MkdirAll(domainDir, 0o755))

	oldLog := filepath.Join(domainDir, "acme-20260101-020000.log")
	newLog := filepath.Join(domainDir, "acme-20260309-020000.log")
	cert := filepath.Join(domainDir, "fullchain.pem")
	for _, p := range []string{oldLog, newLog, cert} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	monthAgo := time.Now().AddDate(0, -1, 0)
	require.NoError(t, os.Chtimes(oldLog, monthAgo, monthAgo))

	cfg := &config.Config{
		Timezone:     "UTC",
		CertsDir:     certsDir,
		LogRetention: "2 weeks",
		Domains:      []config.DomainSpec{{Name: "example.com"}},
	}
	New(cfg).Run()

	assert.NoFileExists(t, oldLog)
	assert.FileExists(t, newLog)
	assert.FileExists(t, cert, "non-log files must never be touched")
}

func TestRunInvalidRetentionFallsBackToThreeMonths(t *testing.T) {
	certsDir := t.TempDir()
	domainDir := filepath.Join(certsDir, "example.com")
	require.NoError(t, os.MkdirAll(domainDir, 0o755))

	// Older than two months but newer than three: survives the fallback.
	recent := filepath.Join(domainDir, "acme-recent.log")
	ancient := filepath.Join(domainDir, "acme-ancient.log")
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(ancient, []byte("x"), 0o644))

	twoMonths := time.Now().AddDate(0, -2, 0)
	fourMonths := time.Now().AddDate(0, -4, 0)
	require.NoError(t, os.Chtimes(recent, twoMonths, twoMonths))
	require.NoError(t, os.Chtimes(ancient, fourMonths, fourMonths))

	cfg := &config.Config{
		Timezone:     "UTC",
		CertsDir:     certsDir,
		LogRetention: "whenever",
		Domains:      []config.DomainSpec{{Name: "example.com"}},
	}
	New(cfg).Run()

	assert.FileExists(t, recent)
	assert.NoFileExists(t, ancient)
}

func TestRunToleratesMissingDomainDir(t *testing.T) {
	cfg := &config.Config{
		Timezone:     "UTC",
		CertsDir:     t.TempDir(),
		LogRetention: "3 months",
		Domains:      []config.DomainSpec{{Name: "ghost.example.com"}},
	}
	assert.NotPanics(t, func() { New(cfg).Run() })
}
