package ops

import (
	"errors"
	"testing"
	"time"

	"randomwiki/pkg/relay"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsObservations(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.CacheHit()
	metrics.CacheHit()
	metrics.CacheMiss()
	metrics.CacheFill()
	metrics.CacheFetchFailed()
	metrics.ObserveRequest("summary", 20*time.Millisecond, nil)
	metrics.ObserveRequest("summary", 30*time.Millisecond, errors.New("upstream 503"))
	metrics.EventDropped("wiki-commands", relay.EventKindCommandReceived)
	metrics.EventHandled("wiki-commands", relay.EventKindCommandReceived, time.Millisecond, nil)
	metrics.ObserveCommand("search", nil)
	metrics.ObserveCommand("search", errors.New("boom"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "cache hits", got: testutil.ToFloat64(metrics.cacheEvents.WithLabelValues("hit")), want: 2},
		{name: "cache misses", got: testutil.ToFloat64(metrics.cacheEvents.WithLabelValues("miss")), want: 1},
		{name: "cache fetch failures", got: testutil.ToFloat64(metrics.cacheEvents.WithLabelValues("fetch_failed")), want: 1},
		{name: "upstream ok", got: testutil.ToFloat64(metrics.upstreamRequests.WithLabelValues("summary", "ok")), want: 1},
		{name: "upstream error", got: testutil.ToFloat64(metrics.upstreamRequests.WithLabelValues("summary", "error")), want: 1},
		{
			name: "dropped events",
			got:  testutil.ToFloat64(metrics.eventsDropped.WithLabelValues("wiki-commands", "command.received")),
			want: 1,
		},
		{name: "commands ok", got: testutil.ToFloat64(metrics.commandsHandled.WithLabelValues("search", "ok")), want: 1},
		{name: "commands error", got: testutil.ToFloat64(metrics.commandsHandled.WithLabelValues("search", "error")), want: 1},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if testCase.got != testCase.want {
				t.Fatalf("%s = %v, want %v", testCase.name, testCase.got, testCase.want)
			}
		})
	}
}

func TestNewMetricsUsesIsolatedRegistries(t *testing.T) {
	t.Parallel()

	first := NewMetrics()
	second := NewMetrics()
	first.CacheHit()

	if got := testutil.ToFloat64(second.cacheEvents.WithLabelValues("hit")); got != 0 {
		t.Fatalf("second registry hits = %v, want 0", got)
	}
}
