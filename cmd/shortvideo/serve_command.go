package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"shortvideo/internal/artifact"
	"shortvideo/internal/daemon"
	"shortvideo/internal/logging"
	"shortvideo/internal/notifications"
	"shortvideo/internal/preflight"
	"shortvideo/internal/providers"
	"shortvideo/internal/task"
	"shortvideo/internal/workflow"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and workflow manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				if !result.Passed {
					logger.Warn("preflight check failed",
						logging.String("check", result.Name),
						logging.String("detail", result.Detail),
						logging.String(logging.FieldEventType, "preflight_failed"),
						logging.String(logging.FieldErrorHint, "run `shortvideo doctor` for details"),
					)
				}
			}

			repo, err := task.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open task store: %w", err)
			}
			store, err := artifact.NewFromConfig(cfg)
			if err != nil {
				repo.Close()
				return fmt.Errorf("open artifact store: %w", err)
			}
			registry, err := providers.NewRegistry(cfg, logger)
			if err != nil {
				repo.Close()
				return fmt.Errorf("build providers: %w", err)
			}
			mgr, err := workflow.NewManager(workflow.Options{
				Config:     cfg,
				Repository: repo,
				Store:      store,
				Registry:   registry,
				Notifier:   notifications.NewService(cfg),
				Logger:     logger,
			})
			if err != nil {
				repo.Close()
				return fmt.Errorf("create workflow manager: %w", err)
			}
			d, err := daemon.New(cfg, repo, store, mgr, logger)
			if err != nil {
				repo.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := d.Start(runCtx); err != nil {
				return err
			}

			listener, err := net.Listen("tcp", cfg.Server.Bind)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Bind, err)
			}
			logger.Info("gateway ready",
				logging.String("addr", listener.Addr().String()),
				logging.String("storage", store.Backend()),
				logging.Any("providers", registry.Describe()),
			)

			var g run.Group
			g.Add(run.SignalHandler(runCtx, os.Interrupt, syscall.SIGTERM))
			g.Add(
				func() error {
					return d.Serve(listener)
				},
				func(error) {
					shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
					defer done()
					if err := d.Shutdown(shutdownCtx); err != nil {
						logger.Warn("gateway shutdown", logging.Error(err))
					}
				},
			)
			g.Add(
				func() error {
					<-runCtx.Done()
					return runCtx.Err()
				},
				func(error) {
					cancel()
					d.Stop()
				},
			)

			err = g.Run()
			var sig run.SignalError
			if errors.As(err, &sig) {
				logger.Info("shortvideo shutting down", logging.String("signal", sig.Signal.String()))
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override server.bind")
	return cmd
}
