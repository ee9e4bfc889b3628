package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebronway/domain-manager/internal/certs"
	"github.com/thebronway/domain-manager/internal/cleanup"
	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/ddns"
	"github.com/thebronway/domain-manager/internal/events"
	"github.com/thebronway/domain-manager/internal/notify"
	"github.com/thebronway/domain-manager/internal/scheduler"
	"github.com/thebronway/domain-manager/internal/server"
	"github.com/thebronway/domain-manager/internal/state"
	"github.com/thebronway/domain-manager/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the trigger API",
	Long: `Start the engine: periodic DDNS reconciliation, the daily SSL renewal
batch, log cleanup, and the HTTP API for manual triggers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.SetLogLevel(cfg.Logging.Level)
	if cfg.Logging.Enabled {
		if err := log.EnableFileOutput(logger.FileOptions{
			Path:       cfg.LogFile(),
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		}); err != nil {
			log.Error("File logging unavailable, continuing on stderr only", "error", err)
		}
	}

	log.Info("Starting domain-manager", "version", buildVersion, "timezone", cfg.Timezone)

	store := state.NewStore(cfg.StateFile())

	ev, err := events.Open(cfg.EventsFile())
	if err != nil {
		// History is a convenience; the engine runs without it.
		log.Error("Event history unavailable", "error", err)
		ev = nil
	} else {
		defer ev.Close()
	}

	notifier := notify.NewFanout(cfg.Notifications)
	if ev != nil {
		notifier.SetRecorder(ev)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	reconciler := ddns.NewReconciler(cfg, store, provider, ddns.DefaultResolvers(), notifier)
	reader := certs.NewFileReader(cfg)
	issuer := certs.NewAcmeIssuer(cfg)
	certMgr := certs.NewManager(cfg, store, issuer, reader, notifier)
	janitor := cleanup.New(cfg)

	loc := cfg.Location()
	sched := scheduler.New()
	sched.SetStartup(func(ctx context.Context) {
		store.Load()
		certMgr.SeedExpirations()
	})
	sched.RegisterIPCheck(cfg.IPCheckInterval, loc, func(ctx context.Context) {
		reconciler.Run(ctx)
	})
	if cfg.CertManagement.Enabled {
		if err := sched.RegisterDailyLocal(scheduler.KindSSLCheck, cfg.CertManagement.CheckTime, loc, func(ctx context.Context) {
			_ = certMgr.TriggerBatch()
		}); err != nil {
			log.Error("SSL check not scheduled", "check_time", cfg.CertManagement.CheckTime, "error", err)
		}
	} else {
		log.Info("SSL certificate management is disabled")
	}
	if err := sched.RegisterDailyLocal(scheduler.KindLogCleanup, cfg.LogCleanupTime, loc, func(ctx context.Context) {
		janitor.Run()
	}); err != nil {
		log.Error("Log cleanup not scheduled", "cleanup_time", cfg.LogCleanupTime, "error", err)
	}

	srv := server.New(cfg, store, sched, reconciler, certMgr, notifier, ev)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	srvDone := make(chan error, 1)
	go func() {
		srvDone <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-srvDone:
		if err != nil {
			log.Error("API server failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", "error", err)
	}
	<-schedDone

	if err := store.Save(); err != nil {
		log.Error("Final state save failed", "error", err)
	}
	log.Info("Shutdown complete")
	return nil
}
