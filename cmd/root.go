// Package cmd implements the mailrelay command line.
package cmd

import (
	"context"
	"errors"
	stdlog "log"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mailrelay/config"
	"mailrelay/database"
)

type runtimeKey struct{}

type runtimeState struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// NewRootCommand builds the mailrelay command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtimeState{}

	root := &cobra.Command{
		Use:           "mailrelay",
		Short:         "SMTP relay admin service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if rt.configPath != "" {
				rt.cfg, err = config.LoadFromFile(rt.configPath)
			} else {
				rt.cfg, err = config.LoadConfig()
			}
			if err != nil {
				return err
			}
			rt.logger = setupLogger(rt.cfg.LogLevel)
			zap.ReplaceGlobals(rt.logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "Path to a YAML config file (environment variables still override it)")
	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
		NewPruneCommand(),
		NewStatsCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil || rt.cfg == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// openStore migrates and opens the configured database.
func (rt *runtimeState) openStore(ctx context.Context) (database.Store, error) {
	if err := database.ApplyMigrations(rt.cfg.DatabaseURL, rt.logger); err != nil {
		return nil, err
	}
	return database.Open(ctx, rt.cfg.DatabaseURL, rt.logger)
}

func setupLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
