// Package logsource defines the log query capability the sweeper consumes:
// "search group G for pattern P within [start, end], return events plus a
// more-results-available flag".
package logsource

import (
	"context"
	"fmt"
	"time"
)

// Query describes one filter call against a single log group.
type Query struct {
	Group        string // resolved group name
	Pattern      string
	Start        time.Time
	End          time.Time
	Limit        int
	StreamPrefix string // optional; empty queries every stream
}

type Event struct {
	Message   string
	Timestamp time.Time
}

type Result struct {
	Events        []Event
	MoreAvailable bool
}

// Source is implemented by log backends.
type Source interface {
	FilterEvents(ctx context.Context, q Query) (Result, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (Result, error)

func (f SourceFunc) FilterEvents(ctx context.Context, q Query) (Result, error) { return f(ctx, q) }

// BackendError is a failed query against one group: group not found,
// throttling, or a transient network fault.
type BackendError struct {
	Group   string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("query %s failed", e.Group)
}

func (e *BackendError) Unwrap() error { return e.Err }
