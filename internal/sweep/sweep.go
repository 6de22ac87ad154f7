// Package sweep implements one poll-aggregate-notify cycle: it polls every
// configured log group concurrently, folds per-group failures into their own
// report blocks, and joins the non-empty blocks into a single bounded report.
//
// A Sweeper is stateless across cycles; each Sweep computes a fresh window
// and a fresh rate limiter that is closed before Sweep returns.
package sweep

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"logsweep/internal/logsource"
	"logsweep/internal/metrics"
	"logsweep/internal/ratelimit"
	logx "logsweep/pkg/logx"
)

// Settings is everything one sweep needs. It is swapped atomically on
// config reload and read once at the start of each sweep.
type Settings struct {
	Groups  []string
	Pattern string
	Period  time.Duration

	NamespacePrefix    string
	StreamPrefixByDate bool
	QueryTimeout       time.Duration

	Budget  Budget
	Limiter LimiterSettings

	// Location renders time labels; nil means time.Local.
	Location *time.Location
}

type LimiterSettings struct {
	Enabled bool
	Quota   int
	Window  time.Duration
}

// CombinedReport is the single message body produced by a sweep.
type CombinedReport struct {
	TimeLabel string
	Body      string
	// Partial is set when the joined body had to be truncated. Per-group
	// partial markers stay in each group's heading.
	Partial bool
}

// Reporter delivers the sweep result. notifier.Service implements it.
type Reporter interface {
	Report(ctx context.Context, r CombinedReport) error
	Fault(ctx context.Context, label string, err error) error
}

type Outcome string

const (
	OutcomeSilent   Outcome = "silent"
	OutcomeReported Outcome = "reported"
	OutcomeFault    Outcome = "fault"
)

// Result summarizes one Sweep for logging and tests.
type Result struct {
	RunID    string
	Outcome  Outcome
	Report   *CombinedReport
	Groups   int
	Failed   int
	Fault    error
	Delivery error
}

type Sweeper struct {
	source   logsource.Source
	reporter Reporter
	log      logx.Logger
	metrics  *metrics.Recorder

	settings atomic.Pointer[Settings]
	now      func() time.Time
}

func New(settings Settings, source logsource.Source, reporter Reporter, log logx.Logger, rec *metrics.Recorder) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweeper{
		source:   source,
		reporter: reporter,
		log:      log,
		metrics:  rec,
		now:      time.Now,
	}
	s.Apply(settings)
	return s
}

// Apply replaces the settings used by subsequent sweeps.
func (s *Sweeper) Apply(settings Settings) {
	cp := settings
	cp.Groups = append([]string(nil), settings.Groups...)
	s.settings.Store(&cp)
}

func (s *Sweeper) Settings() Settings { return *s.settings.Load() }

// Sweep runs one full cycle and delivers its result: a normal report, a
// fault report when orchestration itself failed, or nothing when every
// group came back empty. Delivery failures are logged, never escalated.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	started := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := s.log.With(logx.String("run_id", res.RunID))
	cfg := s.Settings()

	report, label, st, err := s.runGuarded(ctx, cfg, log)
	res.Groups, res.Failed = st.groups, st.failed

	switch {
	case err != nil:
		res.Outcome = OutcomeFault
		res.Fault = err
		log.Error("sweep fault", logx.Err(err))
		res.Delivery = s.reporter.Fault(ctx, label, err)
	case report == nil:
		res.Outcome = OutcomeSilent
	default:
		res.Outcome = OutcomeReported
		res.Report = report
		res.Delivery = s.reporter.Report(ctx, *report)
	}
	if res.Delivery != nil {
		log.Warn("delivery failed", logx.Err(res.Delivery), logx.String("outcome", string(res.Outcome)))
	}

	took := time.Since(started)
	s.metrics.ObserveSweep(string(res.Outcome), took)
	log.Info("sweep finished",
		logx.String("outcome", string(res.Outcome)),
		logx.Int("groups", res.Groups),
		logx.Int("failed", res.Failed),
		logx.Bool("partial", report != nil && report.Partial),
		logx.Duration("took", took),
	)
	return res
}

// Run performs steps 1-7 of a sweep and returns the combined report, or nil
// when there is nothing to report. It does not deliver anything.
func (s *Sweeper) Run(ctx context.Context) (*CombinedReport, error) {
	report, _, _, err := s.runGuarded(ctx, s.Settings(), s.log)
	return report, err
}

type runStats struct {
	groups int
	failed int
}

// runGuarded converts a panic anywhere in orchestration into an error so
// the caller can send a fault report. label is always usable.
func (s *Sweeper) runGuarded(ctx context.Context, cfg Settings, log logx.Logger) (report *CombinedReport, label string, st runStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("panic: %v", r)
			if label == "" {
				label = timeLabel(time.Now(), cfg.Location)
			}
		}
	}()
	return s.run(ctx, cfg, s.now(), log)
}

func (s *Sweeper) run(ctx context.Context, cfg Settings, now time.Time, log logx.Logger) (*CombinedReport, string, runStats, error) {
	label := timeLabel(now, cfg.Location)
	window, err := NewWindow(now, cfg.Period)
	if err != nil {
		return nil, label, runStats{}, err
	}
	label = window.Label(cfg.Location)
	budget := cfg.Budget.withDefaults()

	var lim *ratelimit.Window
	if cfg.Limiter.Enabled {
		lim = ratelimit.New(cfg.Limiter.Quota, cfg.Limiter.Window)
		defer lim.Close()
	}

	streamPrefix := ""
	if cfg.StreamPrefixByDate {
		streamPrefix = window.StreamPrefix(cfg.Location)
	}

	poller := &Poller{
		Source:  s.source,
		Budget:  budget,
		Timeout: cfg.QueryTimeout,
		Log:     log,
		Metrics: s.metrics,
	}
	if lim != nil {
		poller.Limiter = lim
	}

	log.Debug("sweep started",
		logx.Time("start", window.Start),
		logx.Time("end", window.End),
		logx.Int("groups", len(cfg.Groups)),
		logx.Int("quota", lim.Quota()),
	)

	// Results are indexed by input position so output order is stable
	// regardless of completion order.
	reports := make([]GroupReport, len(cfg.Groups))
	var g errgroup.Group
	for i, raw := range cfg.Groups {
		i := i // per-iteration copy; go directive is 1.21 (pre-loopvar semantics)
		q := GroupQuery{
			RawName:      raw,
			ResolvedName: ResolveGroupName(raw, cfg.NamespacePrefix),
			Pattern:      cfg.Pattern,
			Window:       window,
			Limit:        budget.EventLimit,
			StreamPrefix: streamPrefix,
		}
		g.Go(func() error {
			reports[i] = poller.Poll(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	st := runStats{groups: len(reports)}
	blocks := make([]string, 0, len(reports))
	for _, r := range reports {
		if r.Failed {
			st.failed++
		}
		if r.Empty() {
			continue
		}
		blocks = append(blocks, r.Block())
	}
	if len(blocks) == 0 {
		return nil, label, st, nil
	}

	body, cut := TruncateToBudget(strings.Join(blocks, "\n\n"), budget.Body(label))
	return &CombinedReport{TimeLabel: label, Body: body, Partial: cut}, label, st, nil
}
