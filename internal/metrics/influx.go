package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
)

const measurementDetectionCycle = "detection_cycle"

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// InfluxSink writes detection metrics through the asynchronous InfluxDB write API
type InfluxSink struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
}

// NewInfluxSink connects to InfluxDB. An unreachable server is logged but not fatal,
// points are buffered and retried by the client.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx url is required")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx org and bucket are required")
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = time.Second
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ok, err := client.Ping(ctx); err != nil || !ok {
		slog.Warn("InfluxDB not reachable, points will be retried", "url", cfg.URL, "error", err)
	}

	s := &InfluxSink{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
	}

	errorsCh := s.writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			slog.Error("Error sending data to InfluxDB", "bucket", cfg.Bucket, "error", writeErr)
		}
	}()

	slog.Info("InfluxDB sink initialized", "url", cfg.URL, "bucket", cfg.Bucket)
	return s, nil
}

// Record queues one detection_cycle point
func (s *InfluxSink) Record(ctx context.Context, c Cycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}

	point := influxdb2.NewPoint(
		measurementDetectionCycle,
		map[string]string{"source": c.Source},
		map[string]interface{}{
			"flights":         c.Flights,
			"conflicts":       c.Conflicts,
			"alerts":          c.Alerts,
			"known_conflicts": c.KnownConflicts,
		},
		at,
	)
	s.writer.WritePoint(point)
	return nil
}

// Flush sends any buffered points
func (s *InfluxSink) Flush() {
	s.writer.Flush()
}

// Close flushes pending points and releases the client
func (s *InfluxSink) Close() error {
	s.writer.Flush()
	s.client.Close()
	return nil
}
