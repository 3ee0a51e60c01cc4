package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skyroute/internal/conflict"
	"skyroute/internal/database"
	"skyroute/internal/metrics"
	"skyroute/internal/models"
)

// Poller is the part of the conflict detector the monitor drives
type Poller interface {
	Poll(ctx context.Context) conflict.Result
	Aircraft() []models.Aircraft
	KnownConflicts() int
}

// AlertPublisher pushes alerts to live subscribers
type AlertPublisher interface {
	Publish(alert models.Alert)
}

// Snapshot is the traffic picture after the most recent poll
type Snapshot struct {
	Flights   []models.Aircraft
	Conflicts []models.ConflictRecord
	Alerts    []models.Alert
	Source    string
	At        time.Time
}

// ConflictMonitor polls the detector on a fixed interval and fans new alerts out to
// storage, live subscribers and metrics. Persistence and metrics failures are logged
// and never stop the loop.
type ConflictMonitor struct {
	detector  Poller
	alerts    database.AlertRepository
	conflicts database.ConflictRepository
	publisher AlertPublisher
	sink      metrics.Sink
	interval  time.Duration
	timeout   time.Duration

	mu     sync.RWMutex
	latest Snapshot
}

// MonitorConfig holds the monitor's dependencies. Repositories and publisher may be nil.
type MonitorConfig struct {
	Detector  Poller
	Alerts    database.AlertRepository
	Conflicts database.ConflictRepository
	Publisher AlertPublisher
	Sink      metrics.Sink
	Interval  time.Duration // time between polls
	Timeout   time.Duration // bound on each telemetry fetch
}

func NewConflictMonitor(cfg MonitorConfig) *ConflictMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sink := cfg.Sink
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &ConflictMonitor{
		detector:  cfg.Detector,
		alerts:    cfg.Alerts,
		conflicts: cfg.Conflicts,
		publisher: cfg.Publisher,
		sink:      sink,
		interval:  interval,
		timeout:   timeout,
	}
}

func (m *ConflictMonitor) Name() string {
	return "conflict_monitor"
}

func (m *ConflictMonitor) Interval() time.Duration {
	return m.interval
}

// Run performs one poll
func (m *ConflictMonitor) Run(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, m.timeout)
	result := m.detector.Poll(pollCtx)
	cancel()

	now := time.Now()
	flights := m.detector.Aircraft()

	m.mu.Lock()
	m.latest = Snapshot{
		Flights:   flights,
		Conflicts: result.Conflicts,
		Alerts:    result.Alerts,
		Source:    result.Source,
		At:        now,
	}
	m.mu.Unlock()

	if len(result.Alerts) > 0 {
		slog.Info("New conflicts detected",
			"source", result.Source,
			"alerts", len(result.Alerts),
			"conflicts", len(result.Conflicts),
		)
	}

	if m.conflicts != nil {
		if err := m.conflicts.InsertBatch(result.Conflicts); err != nil {
			slog.Error("Failed to store conflicts", "count", len(result.Conflicts), "error", err)
		}
	}
	if m.alerts != nil {
		if err := m.alerts.InsertBatch(result.Alerts); err != nil {
			slog.Error("Failed to store alerts", "count", len(result.Alerts), "error", err)
		}
	}
	if m.publisher != nil {
		for _, a := range result.Alerts {
			m.publisher.Publish(a)
		}
	}

	if err := m.sink.Record(ctx, metrics.Cycle{
		Source:         result.Source,
		Flights:        len(flights),
		Conflicts:      len(result.Conflicts),
		Alerts:         len(result.Alerts),
		KnownConflicts: m.detector.KnownConflicts(),
		At:             now,
	}); err != nil {
		slog.Warn("Failed to record detection metrics", "error", err)
	}

	return nil
}

// Latest returns the snapshot of the most recent poll
func (m *ConflictMonitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
