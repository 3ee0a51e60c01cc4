package metrics

import (
	"context"
	"time"
)

// Cycle is the summary of one detection poll
type Cycle struct {
	Source         string
	Flights        int
	Conflicts      int
	Alerts         int
	KnownConflicts int
	At             time.Time
}

// Sink receives per-cycle detection metrics
type Sink interface {
	Record(ctx context.Context, c Cycle) error
	Close() error
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Record(context.Context, Cycle) error { return nil }
func (NopSink) Close() error                        { return nil }
