package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/surajsub/deployassist/config"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/handlers"
	"github.com/surajsub/deployassist/metrics"
	"github.com/surajsub/deployassist/wizard"
	"github.com/surajsub/deployassist/workers"
	"go.temporal.io/sdk/client"
)

var (
	migrateOnStart bool
	runWorker      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply database migrations before serving")
	serveCmd.Flags().BoolVar(&runWorker, "worker", false, "also run a Temporal worker on the configured task queue")
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger

	if migrateOnStart {
		if err := db.AutoMigrate(a.store.DB()); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	var (
		dispatcher wizard.Dispatcher
		temporal   = func() client.Client { return nil }
	)
	switch a.cfg.Dispatcher {
	case config.DispatcherLocal:
		local := workers.NewLocalDispatcher(a.activities, a.cfg.LocalWorkers, a.cfg.LocalQueue, log)
		local.Start(ctx)
		defer local.Stop()
		dispatcher = local
	default:
		opts, err := a.temporalOptions()
		if err != nil {
			return err
		}
		conn := workers.NewConn(opts, log)
		conn.Start(ctx)
		defer conn.Close()
		temporal = conn.Get
		dispatcher = workers.NewTemporalDispatcher(conn.Get, a.cfg.Temporal.TaskQueue, log)

		if runWorker {
			go runEmbeddedWorker(ctx, a, conn)
		}
	}

	validator, err := wizard.NewValidator()
	if err != nil {
		return err
	}
	wizardOpts := []wizard.Option{}
	if a.cfg.Redis.Addr != "" {
		rc := wizard.NewRedisClient(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		defer rc.Close()
		wizardOpts = append(wizardOpts, wizard.WithLocker(wizard.NewRedisLocker(rc, a.cfg.Redis.LockTTL)))
		log.WithField("addr", a.cfg.Redis.Addr).Info("Using Redis wizard locks")
	}
	orch := wizard.NewOrchestrator(a.store, validator, dispatcher, log, wizardOpts...)

	server := handlers.NewServer(a.store, orch, a.vault, log, handlers.Options{
		RequireAdmin:    a.cfg.RequireAdmin,
		AdminToken:      a.cfg.AdminToken,
		RateLimit:       a.cfg.HTTP.RateLimit,
		RateBurst:       a.cfg.HTTP.RateBurst,
		SupportedRegion: a.cfg.SupportedRegion,
		Temporal:        temporal,
		Health:          func(ctx context.Context) error { return db.Ping(ctx, a.sqlDB) },
		Gatherer:        reg,
	})
	e := handlers.NewEcho(server)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", a.cfg.HTTP.Addr).Info("Starting HTTP server")
		if err := e.Start(a.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// runEmbeddedWorker waits for the first Temporal connection and runs a
// worker on it until ctx is done.
func runEmbeddedWorker(ctx context.Context, a *app, conn *workers.Conn) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for conn.Get() == nil {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	manager := workers.NewWorkerManager(conn.Get(), a.activities, a.logger)
	if err := manager.StartWorker(a.cfg.Temporal.TaskQueue); err != nil {
		a.logger.Errorf("Embedded worker failed to start: %v", err)
		return
	}
	<-ctx.Done()
	manager.StopAll()
}
