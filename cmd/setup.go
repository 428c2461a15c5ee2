package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kilianp07/rcpanel/config"
	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
	coremon "github.com/kilianp07/rcpanel/core/monitoring"
	"github.com/kilianp07/rcpanel/infra/logger"
	"github.com/kilianp07/rcpanel/infra/metrics"
	"github.com/kilianp07/rcpanel/infra/monitoring"
)

// environment holds what every command needs besides the panel itself.
type environment struct {
	cfg     *config.Config
	sink    coremetrics.Sink
	logFile *os.File
}

// setup loads the configuration and initializes logging, monitoring and
// metrics. With toFile set the logs go to logging.file, otherwise to stderr.
func setup(ctx context.Context, path string, toFile bool) (*environment, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	env := &environment{cfg: cfg}

	if toFile {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		env.logFile = f
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stderr)
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		env.Close()
		return nil, err
	}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := metrics.New(cfg.Metrics)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	env.sink = sink
	if cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, cfg.Metrics.PrometheusAddr); err != nil {
				logger.New("main").Errorf("prom server: %v", err)
			}
		}()
	}
	return env, nil
}

// Close flushes monitoring and releases the log file.
func (e *environment) Close() {
	coremon.Flush(2 * time.Second)
	if c, ok := e.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if e.logFile != nil {
		logger.SetOutput(os.Stderr)
		_ = e.logFile.Close()
	}
}
