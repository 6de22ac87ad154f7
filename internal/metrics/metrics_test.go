package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()
	r := New()

	r.ObserveSweep("reported", 150*time.Millisecond)
	r.ObservePoll(PollOK, 2)
	r.ObservePoll(PollFailed, 0)
	r.ObservePoll(PollFailed, 0)
	r.ObserveDelivery("slack", nil)
	r.ObserveDelivery("slack", errors.New("503"))
	r.ObserveLimiterWait(time.Second)

	if got := testutil.ToFloat64(r.sweeps.WithLabelValues("reported")); got != 1 {
		t.Fatalf("sweeps{reported} = %v", got)
	}
	if got := testutil.ToFloat64(r.polls.WithLabelValues(PollFailed)); got != 2 {
		t.Fatalf("polls{failed} = %v", got)
	}
	if got := testutil.ToFloat64(r.deliveries.WithLabelValues("slack", DeliveryFailed)); got != 1 {
		t.Fatalf("deliveries{slack,failed} = %v", got)
	}
	if got := testutil.CollectAndCount(r.limiterWait); got != 1 {
		t.Fatalf("limiter histogram series = %d", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()
	var r *Recorder
	r.ObserveSweep("silent", 0)
	r.ObservePoll(PollOK, 1)
	r.ObserveDelivery("slack", nil)
	r.ObserveLimiterWait(0)
	if r.Registry() != nil {
		t.Fatal("nil recorder should have nil registry")
	}
}

func TestServeExposesMetricsAndPprof(t *testing.T) {
	t.Parallel()
	r := New()
	r.ObserveSweep("silent", time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, ln, true) }()

	base := "http://" + ln.Addr().String()
	for path, want := range map[string]string{
		"/metrics":      `logsweep_sweeps_total{outcome="silent"} 1`,
		"/debug/pprof/": "goroutine",
	} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("GET %s = %d, missing %q", path, resp.StatusCode, want)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve = %v", err)
	}
}
