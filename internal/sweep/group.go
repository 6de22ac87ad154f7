package sweep

import (
	"context"
	"fmt"
	"strings"
	"time"

	"logsweep/internal/logsource"
	"logsweep/internal/metrics"
	logx "logsweep/pkg/logx"
)

// DefaultNamespacePrefix is prepended to bare group names (Lambda functions).
const DefaultNamespacePrefix = "/aws/lambda/"

// ResolveGroupName applies prefix to names that carry no path separator;
// names containing "/" are already fully qualified.
func ResolveGroupName(raw, prefix string) string {
	if strings.Contains(raw, "/") {
		return raw
	}
	return prefix + raw
}

// GroupQuery is one group's poll request; created per group, consumed once.
type GroupQuery struct {
	RawName      string
	ResolvedName string
	Pattern      string
	Window       PollWindow
	Limit        int
	StreamPrefix string
}

// GroupReport is the outcome of polling one group.
//
// Failed reports carry a diagnostic in Text and are never Partial.
type GroupReport struct {
	Group   string
	Text    string
	Partial bool
	Failed  bool
	Events  int
}

// Empty reports whether the group has nothing to show.
func (r GroupReport) Empty() bool { return r.Text == "" }

// Block renders the report as a chat block: the group name as an inline
// heading followed by the text in a fenced block.
func (r GroupReport) Block() string {
	return formatBlock(r.Group, r.Partial, r.Text)
}

func formatBlock(group string, partial bool, text string) string {
	var b strings.Builder
	b.WriteString("`")
	b.WriteString(group)
	if partial {
		b.WriteString(partialMarker)
	}
	b.WriteString("`\n\n```\n")
	b.WriteString(text)
	b.WriteString("\n```")
	return b.String()
}

func failedReport(group string, err error) GroupReport {
	return GroupReport{
		Group:  group,
		Text:   fmt.Sprintf("Failed to poll %s; %v", group, err),
		Failed: true,
	}
}

// Limiter gates backend queries. *ratelimit.Window implements it, including
// its nil value.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Poller queries one group and folds every failure into the report.
type Poller struct {
	Source  logsource.Source
	Limiter Limiter
	Budget  Budget
	// Timeout bounds a single backend query; 0 leaves it to ctx.
	Timeout time.Duration
	Log     logx.Logger
	Metrics *metrics.Recorder
}

// Poll never returns an error and never panics: backend errors, limiter
// errors and panics all become a failed report for q.RawName.
func (p *Poller) Poll(ctx context.Context, q GroupQuery) (rep GroupReport) {
	log := p.Log.With(logx.String("group", q.ResolvedName))
	defer func() {
		if r := recover(); r != nil {
			log.Error("group poll panicked", logx.Any("panic", r))
			rep = failedReport(q.RawName, fmt.Errorf("panic: %v", r))
		}
		p.observe(rep)
	}()

	if p.Limiter != nil {
		waitStart := time.Now()
		if err := p.Limiter.Acquire(ctx); err != nil {
			log.Warn("rate limiter refused query", logx.Err(err))
			return failedReport(q.RawName, err)
		}
		p.Metrics.ObserveLimiterWait(time.Since(waitStart))
	}

	qctx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	res, err := p.Source.FilterEvents(qctx, logsource.Query{
		Group:        q.ResolvedName,
		Pattern:      q.Pattern,
		Start:        q.Window.Start,
		End:          q.Window.End,
		Limit:        q.Limit,
		StreamPrefix: q.StreamPrefix,
	})
	if err != nil {
		log.Warn("group poll failed", logx.Err(err))
		return failedReport(q.RawName, err)
	}

	budget := p.Budget.withDefaults()
	text, cut := TruncateToBudget(joinEvents(res.Events, budget.EventCap), budget.GroupText(q.RawName))
	rep = GroupReport{
		Group:   q.RawName,
		Text:    text,
		Partial: res.MoreAvailable || cut,
		Events:  len(res.Events),
	}
	log.Debug("group polled",
		logx.Int("events", rep.Events),
		logx.Bool("more_available", res.MoreAvailable),
		logx.Bool("truncated", cut),
	)
	return rep
}

func (p *Poller) observe(rep GroupReport) {
	outcome := metrics.PollOK
	switch {
	case rep.Failed:
		outcome = metrics.PollFailed
	case rep.Empty():
		outcome = metrics.PollEmpty
	case rep.Partial:
		outcome = metrics.PollPartial
	}
	p.Metrics.ObservePoll(outcome, rep.Events)
}

// joinEvents trims each event, caps it at eventCap runes and joins the
// non-empty ones with a blank line, preserving backend order.
func joinEvents(events []logsource.Event, eventCap int) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		msg, _ := TruncateToBudget(strings.TrimSpace(e.Message), eventCap)
		msg = strings.TrimSpace(msg)
		if msg == "" {
			continue
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "\n\n")
}
