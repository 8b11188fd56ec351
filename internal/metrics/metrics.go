// Package metrics wires the turn/barge-in counters and stage-latency
// histograms through OpenTelemetry's metric API backed by the Prometheus
// exporter: package-level lazily-created instruments behind a sync.Once,
// and prometheus.New()/sdkmetric.NewMeterProvider/promhttp for exposing
// them over HTTP.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder exposes the dialogd-specific instruments. A zero-value Recorder
// is safe but records nothing; use Setup or Global to get a working one.
type Recorder struct {
	turns          metric.Int64Counter
	bargeIns       metric.Int64Counter
	providerErrors metric.Int64Counter
	stageLatency   metric.Float64Histogram

	initOnce sync.Once
	initErr  error
}

var (
	global     *Recorder
	globalOnce sync.Once
)

// Setup builds the otel SDK meter provider on top of a Prometheus exporter,
// registers it as the global meter provider, and returns a Recorder plus
// the promhttp handler to mount at /metrics.
func Setup(serviceName string) (*Recorder, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)
	r := &Recorder{}
	if err := r.init(meter); err != nil {
		return nil, nil, err
	}
	return r, promhttp.Handler(), nil
}

// Global returns a process-wide Recorder backed by the otel global meter
// provider, lazily initialized on first use so packages that don't have a
// Recorder threaded through them (e.g. deep provider call sites) can still
// record metrics without a nil check at every call site.
func Global() *Recorder {
	globalOnce.Do(func() {
		global = &Recorder{}
		global.init(otel.Meter("github.com/vox-dialog/dialogd"))
	})
	return global
}

func (r *Recorder) init(meter metric.Meter) error {
	r.initOnce.Do(func() {
		r.turns, r.initErr = meter.Int64Counter(
			"dialogd.turns_total",
			metric.WithDescription("Number of reply turns completed, by outcome"),
		)
		if r.initErr != nil {
			return
		}
		r.bargeIns, r.initErr = meter.Int64Counter(
			"dialogd.barge_ins_total",
			metric.WithDescription("Number of turns interrupted by user barge-in"),
		)
		if r.initErr != nil {
			return
		}
		r.providerErrors, r.initErr = meter.Int64Counter(
			"dialogd.provider_errors_total",
			metric.WithDescription("Number of capability provider call failures, by provider and kind"),
		)
		if r.initErr != nil {
			return
		}
		r.stageLatency, r.initErr = meter.Float64Histogram(
			"dialogd.stage_latency_ms",
			metric.WithDescription("Latency of one pipeline stage (asr, llm_first_token, tts_first_chunk) in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
	return r.initErr
}

// TurnCompleted records a finished turn, tagged with its terminal state
// (Completed or Cancelled per dialog.TurnState).
func (r *Recorder) TurnCompleted(ctx context.Context, state string) {
	if r == nil || r.turns == nil {
		return
	}
	r.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// BargeIn records one user-interrupts-assistant event.
func (r *Recorder) BargeIn(ctx context.Context) {
	if r == nil || r.bargeIns == nil {
		return
	}
	r.bargeIns.Add(ctx, 1)
}

// ProviderError records one capability provider failure.
func (r *Recorder) ProviderError(ctx context.Context, provider, kind string) {
	if r == nil || r.providerErrors == nil {
		return
	}
	r.providerErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// StageLatency records how long one pipeline stage took.
func (r *Recorder) StageLatency(ctx context.Context, stage string, d time.Duration) {
	if r == nil || r.stageLatency == nil {
		return
	}
	r.stageLatency.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
