package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/sellerwatch/api"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var schedule time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic scan scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if err := ctx.acquireLock(cfg); err != nil {
				return err
			}
			a, err := ctx.open(runCtx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			if !cmd.Flags().Changed("schedule") {
				schedule = a.cfg.ScheduleInterval
			}

			server := &http.Server{
				Addr: addr,
				Handler: api.NewRouter(api.Config{
					Service:  a.monitor,
					Registry: a.metrics.Registry,
					Logger:   a.logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if schedule > 0 {
				go a.monitor.RunScheduler(runCtx, schedule)
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("api listening", slog.String("addr", addr), slog.Duration("schedule", schedule))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-runCtx.Done():
				a.logger.Info("shutdown signal received, waiting for in-flight work to finish")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("api shutdown failed", slog.Any("error", err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from SELLERWATCH_LISTEN_ADDR)")
	cmd.Flags().DurationVar(&schedule, "schedule", 0, "Scan interval; 0 disables the scheduler")
	return cmd
}
