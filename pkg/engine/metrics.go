package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/vars"
)

var (
	tracer = otel.Tracer("reactive.engine")
	meter  = otel.Meter("reactive.engine")
)

// Metrics for tick processing.
var (
	tickLatency     metric.Float64Histogram
	ticksTotal      metric.Int64Counter
	committedTotal  metric.Int64Counter
	dispatchedTotal metric.Int64Counter
	tickPanics      metric.Int64Counter
	animations      metric.Int64ObservableGauge

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tickLatency, err = meter.Float64Histogram(
			"vars_tick_duration_seconds",
			metric.WithDescription("Duration of a driver tick including dispatch and hooks"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		ticksTotal, err = meter.Int64Counter(
			"vars_ticks_total",
			metric.WithDescription("Total number of ticks applied"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		committedTotal, err = meter.Int64Counter(
			"vars_committed_total",
			metric.WithDescription("Total number of variable commits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		dispatchedTotal, err = meter.Int64Counter(
			"vars_dispatched_total",
			metric.WithDescription("Total number of dispatched callbacks run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tickPanics, err = meter.Int64Counter(
			"vars_tick_panics_total",
			metric.WithDescription("Total number of panics recovered at the tick boundary"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		animations, err = meter.Int64ObservableGauge(
			"vars_active_animations",
			metric.WithDescription("Number of running animation tickers"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(animation.ActiveTickers()))
				return nil
			}),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startTickSpan creates a span covering one tick.
func startTickSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.StepTick",
		trace.WithAttributes(
			attribute.Int64("vars.update.before", int64(vars.CurrentUpdate())),
		),
	)
}

// setTickSpanResult sets the result attributes on a tick span.
func setTickSpanResult(span trace.Span, sample *TickSample) {
	span.SetAttributes(
		attribute.Int64("vars.update", int64(sample.Update)),
		attribute.Int("vars.dispatched", sample.Counts.Dispatched),
		attribute.Int("vars.scheduled", sample.Counts.Scheduled),
		attribute.Int("vars.committed", sample.Counts.Committed),
		attribute.Int("vars.animations", sample.Counts.Animations),
	)
}

func setTickSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// recordTickMetrics records metrics for an applied tick.
func recordTickMetrics(ctx context.Context, duration time.Duration, sample *TickSample) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("committed", sample.Counts.Committed > 0),
	)

	tickLatency.Record(ctx, duration.Seconds(), attrs)
	ticksTotal.Add(ctx, 1, attrs)
	committedTotal.Add(ctx, int64(sample.Counts.Committed))
	dispatchedTotal.Add(ctx, int64(sample.Counts.Dispatched))
}

// recordTickPanic counts a panic recovered in phase.
func recordTickPanic(ctx context.Context, phase string) {
	if err := initMetrics(); err != nil {
		return
	}
	tickPanics.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}
