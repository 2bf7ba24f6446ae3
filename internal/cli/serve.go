package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rmsched/internal/control"
	"rmsched/internal/job"
	"rmsched/internal/sched"
)

func newServeCmd() *cobra.Command {
	var addr, csvPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and its HTTP control channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("csv") {
				cfg.CSVLog = csvPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// clients live outside this process, so any id gets a handle
			pool := job.NewPool(true, logger)
			s := sched.New(cfg, pool, sched.WithLogger(logger))
			if cfg.CSVLog != "" {
				if err := s.EnableCSVLogging(cfg.CSVLog); err != nil {
					return err
				}
			}

			adapter := control.NewAdapter(s, cfg.TimeUnit(), logger)
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           control.NewHandler(adapter, cfg.StatusBuffer, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				_ = s.Run(ctx)
			}()

			srvErr := make(chan error, 1)
			go func() {
				logger.Info("control channel listening", "addr", cfg.ListenAddr, "time_unit", cfg.TimeUnit())
				srvErr <- srv.ListenAndServe()
			}()

			var err error
			select {
			case <-ctx.Done():
			case err = <-srvErr:
				stop()
			}

			// release blocked yields before draining HTTP
			s.Shutdown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Error("http shutdown", "error", serr)
			}
			<-runDone

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write lifecycle events to this CSV file")
	return cmd
}
