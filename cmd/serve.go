package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailrelay/emaillog"
	"mailrelay/events"
	"mailrelay/handlers"
	"mailrelay/metrics"
	"mailrelay/services"
	"mailrelay/settings"
	"mailrelay/stats"
	"mailrelay/utils"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cobra.Command {
	var staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.serve(ctx, staticDir)
		},
	}
	cmd.Flags().StringVar(&staticDir, "static-dir", "./web", "Directory with the dashboard assets (empty disables)")
	return cmd
}

func (rt *runtimeState) serve(ctx context.Context, staticDir string) error {
	cfg, log := rt.cfg, rt.logger

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	dispatcher := events.New(log)
	defer dispatcher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	unsubscribe := metrics.New(reg).Subscribe(dispatcher)
	defer unsubscribe()

	settingsStore := settings.NewStore(store, cfg.RelayHost, log, settings.WithDispatcher(dispatcher))
	emailLog := emaillog.New(store, log,
		emaillog.WithMaxEntries(cfg.MaxLogEntries),
		emaillog.WithLocation(cfg.Location()),
		emaillog.WithDispatcher(dispatcher),
	)
	mailer := services.NewMailService(settingsStore, emailLog, services.GomailDialer(cfg.SkipTLSVerify, log), log)

	if staticDir != "" {
		if _, err := os.Stat(staticDir); err != nil {
			log.Warn("dashboard directory not found, serving API only", zap.String("dir", staticDir))
			staticDir = ""
		}
	}

	router := handlers.NewRouter(handlers.Deps{
		Settings:      settingsStore,
		Validator:     settings.NewValidator(nil),
		Log:           emailLog,
		Stats:         stats.New(emailLog),
		Mailer:        mailer,
		Metrics:       metrics.Handler(reg),
		SendLimiter:   utils.NewSendLimiter(cfg.SendRatePerMin),
		RetentionDays: cfg.LogRetentionDays,
		StaticDir:     staticDir,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.HTTPPort), zap.String("relay_host", cfg.RelayHost))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
