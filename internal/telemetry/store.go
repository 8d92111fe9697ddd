package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"storyloop/internal/status"
	"storyloop/internal/store"
)

const storeScopeName = "storyloop/store"

// InstrumentedStore wraps store.Store with OTel tracing and metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner      store.Store
	tracer     trace.Tracer
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	errs       metric.Int64Counter
	storyGauge metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation.
func WrapStore(s store.Store) store.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("storyloop.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("storyloop.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("storyloop.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	storyGauge, _ := m.Int64Gauge("storyloop.story.count",
		metric.WithDescription("Current number of stories by status (snapshot from Load)"),
	)
	return &InstrumentedStore{
		inner:      s,
		tracer:     Tracer(storeScopeName),
		ops:        ops,
		dur:        dur,
		errs:       errs,
		storyGauge: storyGauge,
	}
}

func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) Load(ctx context.Context) (*store.Snapshot, error) {
	ctx, span, t := s.op(ctx, "Load")
	snap, err := s.inner.Load(ctx)
	if err == nil {
		span.SetAttributes(
			attribute.Int64("storyloop.snapshot.version", snap.Version),
			attribute.Int("storyloop.story.total", len(snap.Stories)),
		)
		counts := snap.Stories.CountByStatus()
		for _, st := range status.All {
			s.storyGauge.Record(ctx, int64(counts[st]),
				metric.WithAttributes(attribute.String("storyloop.story.status", string(st))),
			)
		}
	}
	s.done(ctx, span, t, err)
	return snap, err
}

func (s *InstrumentedStore) Commit(ctx context.Context, snap *store.Snapshot) error {
	attrs := []attribute.KeyValue{attribute.Int64("storyloop.snapshot.version", snap.Version)}
	ctx, span, t := s.op(ctx, "Commit", attrs...)
	err := s.inner.Commit(ctx, snap)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
