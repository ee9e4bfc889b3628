package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// Janitor prunes per-domain ACME operation logs older than the
// configured retention period.
type Janitor struct {
	cfg   *config.Config
	log   *logger.Logger
	nowFn func() time.Time
}

// New builds a janitor over the configured certs directory.
func New(cfg *config.Config) *Janitor {
	return &Janitor{
		cfg:   cfg,
		log:   logger.GetLogger(),
		nowFn: func() time.Time { return time.Now().In(cfg.Location()) },
	}
}

// Run deletes ACME log files whose modification time falls before the
// retention cutoff. Failures are logged per file; the scan continues.
func (j *Janitor) Run() {
	retention := j.cfg.LogRetention
	j.log.Info("Running log cleanup", "retention", retention)

	now := j.nowFn()
	cutoff, err := Cutoff(now, retention)
	if err != nil {
		j.log.Error("Invalid log_retention, defaulting to 3 months", "value", retention, "error", err)
		cutoff, _ = Cutoff(now, "3 months")
	}

	j.log.Info("Deleting ACME logs older than cutoff", "cutoff", cutoff.Format("2006-01-02"))

	deleted := 0
	for _, d := range j.cfg.Domains {
		dir := filepath.Join(j.cfg.CertsDir, d.Name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.log.Error("Failed to scan cert directory", "dir", dir, "error", err)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !isACMELog(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())

			info, err := entry.Info()
			if err != nil {
				j.log.Error("Failed to stat log file", "path", path, "error", err)
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}

			if err := os.Remove(path); err != nil {
				j.log.Error("Failed to delete old log", "path", path, "error", err)
				continue
			}
			j.log.Info("Deleted old log", "path", path)
			deleted++
		}
	}

	j.log.Info("Log cleanup complete", "deleted", deleted)
}

func isACMELog(name string) bool {
	return strings.HasSuffix(name, ".log") &&
		(strings.HasPrefix(name, "acme-") || strings.HasPrefix(name, "letsencrypt.log"))
}

// Cutoff computes the deletion threshold for a retention value of the
// form "N days|weeks|months|years".
func Cutoff(now time.Time, retention string) (time.Time, error) {
	parts := strings.Fields(retention)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("retention %q must be \"value unit\"", retention)
	}

	value, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("retention value %q is not an integer", parts[0])
	}

	unit := strings.ToLower(parts[1])
	switch {
	case strings.Contains(unit, "day"):
		return now.AddDate(0, 0, -value), nil
	case strings.Contains(unit, "week"):
		return now.AddDate(0, 0, -7*value), nil
	case strings.Contains(unit, "month"):
		return now.AddDate(0, -value, 0), nil
	case strings.Contains(unit, "year"):
		return now.AddDate(-value, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown retention unit %q", parts[1])
	}
}
