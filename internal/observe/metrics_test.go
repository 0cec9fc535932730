package observe

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func prometheusRegistry(t *testing.T) prometheus.Registerer {
	t.Helper()
	return prometheus.NewRegistry()
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumAt returns the value of the int64 sum data point whose attributes
// include every key/value pair in kv.
func sumAt(t *testing.T, rm metricdata.ResourceMetrics, name string, kv ...string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q data = %T, want Sum[int64]", name, m.Data)
	}
next:
	for _, dp := range sum.DataPoints {
		for i := 0; i+1 < len(kv); i += 2 {
			if v, ok := dp.Attributes.Value(attribute.Key(kv[i])); !ok || v.AsString() != kv[i+1] {
				continue next
			}
		}
		return dp.Value
	}
	return 0
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	hists := map[string]metric.Float64Histogram{
		"voiceturn.stt.duration":  m.STTDuration,
		"voiceturn.llm.duration":  m.LLMDuration,
		"voiceturn.tts.duration":  m.TTSDuration,
		"voiceturn.turn.duration": m.TurnDuration,
	}
	for _, h := range hists {
		h.Record(ctx, 0.25)
		h.Record(ctx, 3)
	}

	rm := collect(t, reader)
	for name := range hists {
		got := findMetric(rm, name)
		if got == nil {
			t.Errorf("%s not recorded", name)
			continue
		}
		hist := got.Data.(metricdata.Histogram[float64])
		dp := hist.DataPoints[0]
		if dp.Count != 2 || dp.Sum != 3.25 {
			t.Errorf("%s count=%d sum=%v", name, dp.Count, dp.Sum)
		}
		if len(dp.Bounds) != len(stageBuckets) {
			t.Errorf("%s bounds = %v", name, dp.Bounds)
		}
		if got.Unit != "s" {
			t.Errorf("%s unit = %q", name, got.Unit)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "error")
	m.RecordProviderError(ctx, "openai", "llm")
	m.RecordTransition(ctx, "idle", "recording")
	m.RecordTransition(ctx, "idle", "recording")
	m.RecordTransition(ctx, "recording", "processing")
	m.RecordTurn(ctx, "played")
	m.RecordTurn(ctx, "cancelled")
	m.ResourceOpened(ctx, "capture")
	m.ResourceClosed(ctx, "capture")
	m.ResourceOpened(ctx, "playback")

	rm := collect(t, reader)
	tests := []struct {
		name string
		kv   []string
		want int64
	}{
		{"voiceturn.provider.requests", []string{"provider", "openai", "status", "ok"}, 2},
		{"voiceturn.provider.requests", []string{"status", "error"}, 1},
		{"voiceturn.provider.errors", []string{"provider", "openai", "kind", "llm"}, 1},
		{"voiceturn.state.transitions", []string{"from", "idle", "to", "recording"}, 2},
		{"voiceturn.state.transitions", []string{"to", "processing"}, 1},
		{"voiceturn.turns", []string{"outcome", "played"}, 1},
		{"voiceturn.turns", []string{"outcome", "failed"}, 0},
		{"voiceturn.audio.live_resources", []string{"resource", "capture"}, 0},
		{"voiceturn.audio.live_resources", []string{"resource", "playback"}, 1},
	}
	for _, tt := range tests {
		if got := sumAt(t, rm, tt.name, tt.kv...); got != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.name, tt.kv, got, tt.want)
		}
	}
}

func TestObservePower(t *testing.T) {
	m, reader := newTestMetrics(t)
	power := 0.42
	unregister, err := m.ObservePower(func() float64 { return power })
	if err != nil {
		t.Fatalf("ObservePower: %v", err)
	}

	gauge := func() []metricdata.DataPoint[float64] {
		got := findMetric(collect(t, reader), "voiceturn.audio.power")
		if got == nil {
			return nil
		}
		return got.Data.(metricdata.Gauge[float64]).DataPoints
	}
	if dps := gauge(); len(dps) != 1 || dps[0].Value != 0.42 {
		t.Errorf("power = %+v, want 0.42", dps)
	}
	power = 0.9
	if dps := gauge(); len(dps) != 1 || dps[0].Value != 0.9 {
		t.Errorf("power after change = %+v, want 0.9", dps)
	}

	if err := unregister(); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if dps := gauge(); len(dps) != 0 {
		t.Errorf("power after unregister = %+v", dps)
	}
}

// failingMeter rejects every counter so NewMetrics has to report it.
type failingMeter struct{ noop.Meter }

func (failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errors.New("rejected")
}

type failingProvider struct{ noop.MeterProvider }

func (failingProvider) Meter(string, ...metric.MeterOption) metric.Meter { return failingMeter{} }

func TestNewMetrics_ReportsFirstError(t *testing.T) {
	_, err := NewMetrics(failingProvider{})
	if err == nil {
		t.Fatal("NewMetrics succeeded with a failing meter")
	}
	if want := "observe: instrument voiceturn.turns: rejected"; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
