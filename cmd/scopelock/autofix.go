package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scopelock/internal/autofix"
	"scopelock/internal/config"
	"scopelock/internal/dispatch"
	"scopelock/internal/store"

	"github.com/spf13/cobra"
)

func autofixCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "autofix",
		Short: "Listen for failed Vercel deployments and run the fix command once per deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.AutoFix.Port = port
			}

			ledger, err := store.NewSQLiteStore(cfg.Journal.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open deployment ledger: %w", err)
			}
			defer ledger.Close()

			srv := autofix.New(autofix.Config{
				Host:        cfg.AutoFix.Host,
				Port:        cfg.AutoFix.Port,
				Path:        cfg.AutoFix.Path,
				MetricsPath: metricsPath(cfg),
				TeamSlug:    cfg.AutoFix.TeamSlug,
				FixTimeout:  time.Duration(cfg.AutoFix.TimeoutSeconds) * time.Second,
				Ledger:      ledger,
				Runner: &autofix.CommandRunner{
					Command: cfg.AutoFix.Command,
					Args:    cfg.AutoFix.Args,
					WorkDir: cfg.AutoFix.WorkDir,
				},
				Notifier: announcer(cfg),
				Logger:   logger,
			})

			handled, _ := ledger.CountDeployments(ctx)
			fmt.Printf("🚀 Vercel auto-fix listening on %s%s\n", srv.Addr(), cfg.AutoFix.Path)
			fmt.Printf("   %d deployment(s) already handled\n", handled)

			return srv.Start(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides autofix.port)")
	return cmd
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Endpoint
}

// announcer returns a dispatcher for fix notices, or nil when Telegram is off
// or unreachable. The listener runs either way.
func announcer(cfg *config.Config) *dispatch.Dispatcher {
	if !cfg.AutoFix.NotifyTelegram {
		return nil
	}
	tr, err := openTransport(cfg)
	if err != nil {
		logger.Warn("telegram announcements disabled", "err", err)
		return nil
	}
	return dispatch.New(dispatch.Config{
		Transport:    tr,
		TargetLength: cfg.Dispatch.TargetLength,
		MaxLength:    cfg.Dispatch.MaxLength,
		Pacing:       cfg.Dispatch.Pacing(),
		Logger:       logger,
	})
}
