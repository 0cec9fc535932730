// Package observe wires voiceturn into OpenTelemetry. It owns the metric
// instruments recorded by the controller and the assistant client, the turn
// correlation carried through contexts, and the HTTP middleware used by the
// diagnostics server.
//
// Instruments go through the global OTel meter by default ([DefaultMetrics]).
// [InitProvider] backs that meter with a Prometheus exporter. Tests build
// their own [Metrics] over a [metric.MeterProvider] with a manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scope is the instrumentation scope for both the meter and the tracer.
const scope = "github.com/MrWong99/voiceturn"

// Metrics is the set of instruments voiceturn records. Safe for concurrent use.
type Metrics struct {
	meter metric.Meter

	// Remote stage latencies in seconds.
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// TurnDuration spans end of recording to start of playback.
	TurnDuration metric.Float64Histogram

	// Turns is keyed by "outcome": played, cancelled or failed.
	Turns metric.Int64Counter

	// StateTransitions is keyed by "from" and "to" phase.
	StateTransitions metric.Int64Counter

	// ProviderRequests is keyed by "provider", "kind" and "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors is keyed by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// LiveResources counts open audio resources keyed by "resource".
	LiveResources metric.Int64UpDownCounter

	// HTTPRequestDuration is keyed by "method", "path" and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets are histogram boundaries in seconds sized for network round
// trips to speech and language services.
var stageBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// instruments creates instruments on one meter and keeps the first error so
// NewMetrics can declare everything before checking.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) latency(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.keep(name, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("observe: instrument %s: %w", name, err)
	}
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(scope)}
	m := &Metrics{
		meter:               b.meter,
		STTDuration:         b.latency("voiceturn.stt.duration", "Latency of speech-to-text transcription.", stageBuckets...),
		LLMDuration:         b.latency("voiceturn.llm.duration", "Latency of chat completion.", stageBuckets...),
		TTSDuration:         b.latency("voiceturn.tts.duration", "Latency of text-to-speech synthesis.", stageBuckets...),
		TurnDuration:        b.latency("voiceturn.turn.duration", "Time from end of recording to start of playback.", stageBuckets...),
		Turns:               b.counter("voiceturn.turns", "Finished turns by outcome."),
		StateTransitions:    b.counter("voiceturn.state.transitions", "Controller state transitions by source and target phase."),
		ProviderRequests:    b.counter("voiceturn.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:      b.counter("voiceturn.provider.errors", "Failed provider calls by provider and kind."),
		HTTPRequestDuration: b.latency("voiceturn.http.request.duration", "Diagnostics request latency."),
	}
	var err error
	m.LiveResources, err = b.meter.Int64UpDownCounter("voiceturn.audio.live_resources",
		metric.WithDescription("Open capture and playback resources."))
	b.keep("voiceturn.audio.live_resources", err)
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] on the global meter
// provider. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// ObservePower registers an asynchronous gauge reporting the normalised audio
// power returned by fn. The returned function unregisters it.
func (m *Metrics) ObservePower(fn func() float64) (func() error, error) {
	gauge, err := m.meter.Float64ObservableGauge("voiceturn.audio.power",
		metric.WithDescription("Latest normalised audio power in [0,1]."),
	)
	if err != nil {
		return nil, err
	}
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(gauge, fn())
		return nil
	}, gauge)
	if err != nil {
		return nil, err
	}
	return reg.Unregister, nil
}

func attrs(kv ...string) metric.MeasurementOption {
	set := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		set = append(set, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(set...)
}

// RecordProviderRequest counts one provider call with its status.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, attrs("provider", provider, "kind", kind, "status", status))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, attrs("provider", provider, "kind", kind))
}

// RecordTransition counts a controller phase change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, attrs("from", from, "to", to))
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, attrs("outcome", outcome))
}

// ResourceOpened and ResourceClosed track the live audio resources of kind
// "capture" or "playback".
func (m *Metrics) ResourceOpened(ctx context.Context, kind string) {
	m.LiveResources.Add(ctx, 1, attrs("resource", kind))
}

func (m *Metrics) ResourceClosed(ctx context.Context, kind string) {
	m.LiveResources.Add(ctx, -1, attrs("resource", kind))
}
