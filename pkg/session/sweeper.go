package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	sweepMetricsOnce sync.Once
	sweepCounter     metric.Int64Counter
	sweepEvicted     metric.Int64Counter
	sweepLatencyMs   metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("tom/session")
		sweepCounter, _ = meter.Int64Counter("tom.session.sweeps.total",
			metric.WithDescription("Number of session sweep passes executed"))
		sweepEvicted, _ = meter.Int64Counter("tom.session.sweeps.evicted.total",
			metric.WithDescription("Number of expired sessions evicted by the sweeper"))
		sweepLatencyMs, _ = meter.Float64Histogram("tom.session.sweep.duration.ms",
			metric.WithDescription("Sweep pass latency in milliseconds"),
			metric.WithUnit("ms"))
	})
}

// Sweeper periodically evicts expired sessions from a Store.
type Sweeper struct {
	store    Store
	interval time.Duration
	timeout  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper over store. An interval of 0 disables it.
func NewSweeper(store Store, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, timeout: timeout}
}

// Start launches the sweep loop in a background goroutine. Calling Start
// on a running sweeper restarts it.
func (s *Sweeper) Start() {
	log := slog.Default()
	if s.interval <= 0 || s.store == nil {
		log.Info("session.sweeper.disabled",
			slog.Duration("interval", s.interval),
		)
		return
	}
	if s.cancel != nil {
		s.Stop()
	}
	initSweepMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		log.Info("session.sweeper.start",
			slog.Duration("interval", s.interval),
			slog.Duration("timeout", s.timeout),
		)
		for {
			select {
			case <-ctx.Done():
				log.Info("session.sweeper.stop")
				return
			case <-ticker.C:
				s.sweepOnce(ctx, log)
			}
		}
	}()
}

func (s *Sweeper) sweepOnce(ctx context.Context, log *slog.Logger) {
	sweepCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		sweepCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	sweepCtx, span := otel.Tracer("tom/session").Start(sweepCtx, "session.sweep",
		trace.WithAttributes(attribute.String("timeout", s.timeout.String())),
	)
	defer span.End()

	start := time.Now()
	evicted, err := s.store.Sweep(sweepCtx)
	durationMs := float64(time.Since(start).Seconds() * 1000)
	sweepCounter.Add(ctx, 1)
	sweepLatencyMs.Record(ctx, durationMs)
	if err != nil {
		span.RecordError(err)
		log.Error("session.sweep.error",
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", durationMs),
		)
		return
	}
	if evicted > 0 {
		sweepEvicted.Add(ctx, int64(evicted))
	}
	log.Debug("session.sweep.done",
		slog.Int("evicted", evicted),
		slog.Float64("duration_ms", durationMs),
	)
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}
