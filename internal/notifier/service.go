package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"logsweep/internal/metrics"
	"logsweep/internal/sweep"
	logx "logsweep/pkg/logx"
)

var ErrNoSinks = errors.New("notifier has no sinks")

// Sink delivers one text payload to a chat destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// DeliveryError is a failed delivery to one sink.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver to %s: %v", e.Sink, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

type Config struct {
	// RatePerSec throttles posts; Slack webhooks allow about one per second.
	RatePerSec float64
	// Timeout bounds each sink call.
	Timeout time.Duration
	// MessageCeiling is the hard size limit of one message, in runes.
	MessageCeiling int
}

// Service implements sweep.Reporter.
//
// It is safe for concurrent use.
type Service struct {
	cfg     Config
	sinks   []Sink
	limiter *rate.Limiter
	log     logx.Logger
	metrics *metrics.Recorder
}

var _ sweep.Reporter = (*Service)(nil)

func New(cfg Config, log logx.Logger, rec *metrics.Recorder, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MessageCeiling <= 0 {
		cfg.MessageCeiling = sweep.DefaultMessageCeiling
	}
	return &Service{
		cfg:   cfg,
		sinks: sinks,
		// Burst 1: a sweep posts once, a burst only happens in daemon catch-up.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log,
		metrics: rec,
	}
}

// Report formats and posts a normal sweep report.
func (s *Service) Report(ctx context.Context, r sweep.CombinedReport) error {
	return s.Post(ctx, FormatReport(r))
}

// Fault formats and posts an orchestration fault.
func (s *Service) Fault(ctx context.Context, label string, err error) error {
	return s.Post(ctx, FormatFault(label, err, s.cfg.MessageCeiling))
}

// Post makes one delivery attempt per sink. It returns the joined
// *DeliveryError values of the sinks that failed.
func (s *Service) Post(ctx context.Context, text string) error {
	if len(s.sinks) == 0 {
		return ErrNoSinks
	}
	s.log.Debug("posting notification", logx.Int("chars", utf8.RuneCountInString(text)), logx.String("text", text))

	if err := s.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Sink: "limiter", Err: err}
	}

	var errs []error
	for _, sink := range s.sinks {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		start := time.Now()
		err := sink.Send(callCtx, text)
		cancel()

		s.metrics.ObserveDelivery(sink.Name(), err)
		if err != nil {
			s.log.Warn("notification delivery failed", logx.String("sink", sink.Name()), logx.Err(err))
			errs = append(errs, &DeliveryError{Sink: sink.Name(), Err: err})
			continue
		}
		s.log.Info("notification delivered", logx.String("sink", sink.Name()), logx.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}

// FormatReport renders a combined report with its time label heading.
func FormatReport(r sweep.CombinedReport) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(r.TimeLabel)
	b.WriteString("*")
	if r.Partial {
		b.WriteString(" [partial]")
	}
	b.WriteString("\n\n")
	b.WriteString(r.Body)
	return b.String()
}

const faultMarkup = "*FAULT* " + "\n\n```\n" + "\n```"

// FormatFault renders an orchestration fault, cutting the error message so
// the payload stays within ceiling runes.
func FormatFault(label string, err error, ceiling int) string {
	msg := "unknown fault"
	if err != nil {
		msg = err.Error()
	}
	if ceiling > 0 {
		msg, _ = sweep.TruncateToBudget(msg, ceiling-len(faultMarkup)-utf8.RuneCountInString(label))
	}
	return "*FAULT* " + label + "\n\n```\n" + msg + "\n```"
}
