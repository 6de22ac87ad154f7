// Package scheduler triggers sweeps on a cron or interval schedule in daemon
// mode. A trigger that fires while the previous run is still going is
// skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "logsweep/pkg/logx"
)

// Job is the scheduled work. ctx is the one passed to Start.
type Job func(ctx context.Context)

type Service struct {
	log    logx.Logger
	parser cron.Parser
	job    Job
	// runMu keeps runs exclusive across reschedules, where the old cron's
	// SkipIfStillRunning chain no longer sees the new triggers.
	runMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	c       *cron.Cron
	entry   cron.EntryID
	spec    ParsedSpec
	loc     *time.Location
	running bool
}

func New(log logx.Logger, job Job) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log: log,
		job: job,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start begins triggering the job on raw in loc (nil means time.Local).
func (s *Service) Start(ctx context.Context, raw string, loc *time.Location) error {
	spec, err := s.parse(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	s.ctx = ctx
	if err := s.startLocked(spec, orLocal(loc)); err != nil {
		return err
	}
	s.running = true
	s.log.Info("scheduler started",
		logx.String("schedule", spec.Expr()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.nextLocked()),
	)
	return nil
}

// Apply switches to a new schedule. The previous schedule stays in place if
// raw does not parse. A run in progress is not interrupted.
func (s *Service) Apply(raw string, loc *time.Location) error {
	spec, err := s.parse(raw)
	if err != nil {
		return err
	}
	loc = orLocal(loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.spec, s.loc = spec, loc
		return nil
	}
	if spec == s.spec && loc.String() == s.loc.String() {
		return nil
	}
	old := s.c
	if err := s.startLocked(spec, loc); err != nil {
		return err
	}
	old.Stop()
	s.log.Info("scheduler rescheduled",
		logx.String("schedule", spec.Expr()),
		logx.String("tz", loc.String()),
		logx.Time("next", s.nextLocked()),
	)
	return nil
}

// Stop stops triggering and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; a run is still in progress")
	}
}

// Next returns the next trigger time, or the zero time when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Service) parse(raw string) (ParsedSpec, error) {
	spec, err := ParseSchedule(raw)
	if err != nil {
		return ParsedSpec{}, err
	}
	if _, err := s.parser.Parse(spec.Expr()); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", spec.Expr(), err)
	}
	return spec, nil
}

func (s *Service) startLocked(spec ParsedSpec, loc *time.Location) error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx := s.ctx
	id, err := c.AddFunc(spec.Expr(), func() {
		if ctx.Err() != nil {
			return
		}
		if !s.runMu.TryLock() {
			s.log.Warn("sweep still running; trigger skipped")
			return
		}
		defer s.runMu.Unlock()
		s.job(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	s.c, s.entry, s.spec, s.loc = c, id, spec, loc
	return nil
}

func (s *Service) nextLocked() time.Time {
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger. cron's Info chatter goes to debug
// except skipped runs, which mean a sweep outlived its interval.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	fields := kvFields(keysAndValues)
	if msg == "skip" {
		l.log.Warn("sweep still running; trigger skipped", fields...)
		return
	}
	l.log.Debug("cron "+msg, fields...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(strings.ToLower(k), kv[i+1]))
	}
	return out
}
