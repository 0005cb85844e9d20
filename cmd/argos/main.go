package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/feedback"
	"github.com/steliosspap/Argos-public-sub005/internal/logging"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/pipeline"
	"github.com/steliosspap/Argos-public-sub005/internal/publish"
	"github.com/steliosspap/Argos-public-sub005/internal/sink"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "argos",
	Short:         "Conflict event intelligence pipeline",
	Long:          "argos fetches open-source news, extracts conflict events, links entities,\ngroups corroborating reports and keeps an escalation score per zone.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/config.yml", "path to YAML config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs, built from one config file.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	store     store.Store
	metrics   *metrics.Metrics
	hub       *publish.Hub
	publisher *publish.Publisher
	queue     feedback.Queue
	pipeline  *pipeline.Pipeline
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log.Info("argos starting", zap.String("version", Version), zap.String("config", cfgPath))

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st, metrics: metrics.New()}
	a.hub = publish.NewHub(a.metrics)

	sinks := sink.FromConfig(cfg.Loki, cfg.Victoria)
	for _, s := range sinks {
		log.Info("sink configured", zap.String("sink", s.Name()))
	}
	a.publisher = publish.NewPublisher(a.hub, sinks, a.metrics, log)

	if cfg.Feedback.Enabled {
		q, err := feedback.Open(cfg.Feedback)
		if err != nil {
			a.close()
			return nil, err
		}
		a.queue = q
	}

	a.pipeline, err = pipeline.New(ctx, cfg, st, pipeline.Options{
		Queue:     a.queue,
		Publisher: a.publisher,
		Metrics:   a.metrics,
	}, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.Warn("close feedback queue", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	_ = a.log.Sync()
}
