package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/pipeline"
	"github.com/steliosspap/Argos-public-sub005/internal/server"
	"github.com/steliosspap/Argos-public-sub005/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingestion cycles and serve the control API until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	srv := server.New(a.cfg.Server, server.Deps{
		Cycler:  a.pipeline,
		Sources: a.pipeline.Registry(),
		Store:   a.store,
		Hub:     a.hub,
		Metrics: a.metrics,
	}, 2*a.cfg.Escalation.Interval, a.cfg.Escalation.Window, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.Serve(); err != nil {
			log.Error("http server", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		a.pipeline.Engine().Run(ctx, func(scores []model.ZoneScore) {
			if err := a.publisher.Publish(ctx, sink.Batch{Scores: scores}); err != nil {
				log.Warn("publish decayed scores", zap.Error(err))
			}
		})
	}()

	log.Info("argos running", zap.Int("sources", len(a.cfg.Sources)), zap.Duration("interval", a.cfg.Interval))
	runCycle := func() {
		if _, err := a.pipeline.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("cycle", zap.Error(err))
		}
	}
	runCycle()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			runCycle()
		}
	}

	log.Info("shutting down", zap.Error(context.Cause(ctx)))
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single ingestion cycle and print its report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.pipeline.Cycle(ctx)
		if err != nil && !errors.Is(err, pipeline.ErrCycleRunning) && !report.Interrupted {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if a.cfg.Metrics.Enable {
			if snap := a.metrics.Dump(); snap != "" {
				cmd.PrintErrln("METRICS SNAPSHOT:" + snap)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
