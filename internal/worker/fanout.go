// Package worker provides background job processing for CitySignal.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api/middleware"
	"github.com/citysignal/citysignal/internal/notify"
	"github.com/citysignal/citysignal/internal/signal"
)

// FanoutJob loads a signal and pushes its alert to nearby subscribers.
type FanoutJob struct {
	signals  signal.Repository
	notifier *notify.Fanout
	metrics  *middleware.FanoutMetrics
	logger   zerolog.Logger
}

// FanoutJobConfig holds configuration for the fanout job.
type FanoutJobConfig struct {
	Signals  signal.Repository
	Notifier *notify.Fanout
	Metrics  *middleware.FanoutMetrics // optional
	Logger   zerolog.Logger
}

// NewFanoutJob creates a new fanout job.
func NewFanoutJob(cfg FanoutJobConfig) *FanoutJob {
	return &FanoutJob{
		signals:  cfg.Signals,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// FanoutResult summarizes one fanout run.
type FanoutResult struct {
	SignalID   string
	Recipients int
	Delivered  int
	Gone       int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

// Run executes the fanout for one signal.
func (j *FanoutJob) Run(ctx context.Context, signalID string) (*FanoutResult, error) {
	start := time.Now()

	sig, err := j.signals.Get(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("loading signal %s: %w", signalID, err)
	}

	results := j.notifier.Notify(ctx, signal.AlertFor(sig))

	out := &FanoutResult{
		SignalID:   signalID,
		Recipients: len(results),
		Duration:   time.Since(start),
	}
	for _, res := range results {
		switch {
		case res.OK:
			out.Delivered++
			j.recordDelivery("ok")
		case res.Gone:
			out.Gone++
			j.recordDelivery("gone")
		case res.Skipped:
			out.Skipped++
			j.recordDelivery("skipped")
		default:
			out.Failed++
			j.recordDelivery("error")
		}
	}
	if j.metrics != nil {
		j.metrics.RecordFanout(out.Duration, out.Recipients)
	}

	j.logger.Info().
		Str("signal_id", signalID).
		Int("recipients", out.Recipients).
		Int("delivered", out.Delivered).
		Int("gone", out.Gone).
		Int("skipped", out.Skipped).
		Int("failed", out.Failed).
		Dur("duration", out.Duration).
		Msg("fanout completed")

	return out, nil
}

func (j *FanoutJob) recordDelivery(outcome string) {
	if j.metrics != nil {
		j.metrics.RecordDelivery(outcome)
	}
}
