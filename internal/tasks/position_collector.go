package tasks

import (
	"context"
	"log/slog"
	"time"

	"skyroute/internal/database"
	"skyroute/internal/models"
)

// PositionUpdater receives every decoded SBS message as it arrives
type PositionUpdater interface {
	Update(msg *models.SBSMessage)
}

// PositionCollector feeds SBS messages to the live tracker and stores them in batches
type PositionCollector struct {
	repo          database.PositionRepository
	tracker       PositionUpdater
	messageChan   <-chan *models.SBSMessage
	batchSize     int           // maximum number of messages in a batch before committing to database
	flushInterval time.Duration // time to flush batch even if not full
}

// NewPositionCollector uses a batch size of 100 messages and a 1 second flush interval.
// tracker may be nil.
func NewPositionCollector(repo database.PositionRepository, tracker PositionUpdater, messageChan <-chan *models.SBSMessage) *PositionCollector {
	return NewPositionCollectorWithConfig(repo, tracker, messageChan, 100, time.Second)
}

// NewPositionCollectorWithConfig creates a collector with custom batch settings
func NewPositionCollectorWithConfig(repo database.PositionRepository, tracker PositionUpdater, messageChan <-chan *models.SBSMessage, batchSize int, flushInterval time.Duration) *PositionCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &PositionCollector{
		repo:          repo,
		tracker:       tracker,
		messageChan:   messageChan,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Start blocks until ctx is cancelled or the message channel is closed. Batches are
// written when full or when flushInterval elapses, whichever comes first.
func (c *PositionCollector) Start(ctx context.Context) error {
	batch := make([]*models.SBSMessage, 0, c.batchSize)

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.repo.InsertBatch(batch); err != nil {
			slog.Error("Error inserting batch of position reports", "batch_size", len(batch), "error", err)
		} else {
			slog.Debug("Inserted batch of position reports", "batch_size", len(batch))
		}
		// The repository does not retain the slice, so it can be reused
		batch = batch[:0]
	}

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushBatch()
			return ctx.Err()

		case <-ticker.C:
			flushBatch()

		case msg, ok := <-c.messageChan:
			if !ok {
				flushBatch()
				return nil
			}
			if msg == nil {
				continue
			}

			if c.tracker != nil {
				c.tracker.Update(msg)
			}

			batch = append(batch, msg)
			if len(batch) >= c.batchSize {
				flushBatch()
			}
		}
	}
}
