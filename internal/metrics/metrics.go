// Package metrics provides Prometheus metrics for logsweep.
//
// Collectors live on a private registry per Recorder so tests (and multiple
// App instances) never collide on global registration. A nil *Recorder is a
// valid no-op.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logsweep"

// Outcome labels shared by callers.
const (
	PollOK      = "ok"
	PollEmpty   = "empty"
	PollPartial = "partial"
	PollFailed  = "failed"

	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

type Recorder struct {
	reg *prometheus.Registry

	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	polls         *prometheus.CounterVec
	pollEvents    prometheus.Histogram
	deliveries    *prometheus.CounterVec
	limiterWait   prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweeps by outcome (silent, reported, fault).",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one poll-aggregate-notify cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_polls_total",
			Help:      "Group polls by outcome.",
		}, []string{"outcome"}),
		pollEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_poll_events",
			Help:      "Matched events returned per group poll.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Chat deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		limiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for a query slot.",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 2, 5},
		}),
	}
	r.reg.MustRegister(
		r.sweeps, r.sweepDuration, r.polls, r.pollEvents, r.deliveries, r.limiterWait,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) ObserveSweep(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.sweeps.WithLabelValues(outcome).Inc()
	r.sweepDuration.Observe(d.Seconds())
}

func (r *Recorder) ObservePoll(outcome string, events int) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(outcome).Inc()
	if outcome != PollFailed {
		r.pollEvents.Observe(float64(events))
	}
}

func (r *Recorder) ObserveDelivery(sink string, err error) {
	if r == nil {
		return
	}
	outcome := DeliveryOK
	if err != nil {
		outcome = DeliveryFailed
	}
	r.deliveries.WithLabelValues(sink, outcome).Inc()
}

func (r *Recorder) ObserveLimiterWait(d time.Duration) {
	if r == nil {
		return
	}
	r.limiterWait.Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is done. With withPprof the
// runtime profiles are mounted under /debug/pprof/ on the same listener;
// keep addr on loopback when enabling it.
func (r *Recorder) Serve(ctx context.Context, addr string, withPprof bool) error {
	if r == nil {
		return errors.New("metrics recorder is nil")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.serve(ctx, ln, withPprof)
}

func (r *Recorder) serve(ctx context.Context, ln net.Listener, withPprof bool) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg}))
	if withPprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
