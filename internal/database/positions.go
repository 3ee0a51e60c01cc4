package database

import (
	"database/sql"
	"fmt"

	"skyroute/internal/models"
)

type PositionRepository interface {
	InsertBatch(msgs []*models.SBSMessage) error
	Count() (int, error)
}

type positionRepository struct {
	db *sql.DB
}

func NewPositionRepository(db *sql.DB) PositionRepository {
	return &positionRepository{db: db}
}

// InsertBatch inserts SBS messages in a single transaction; duplicates are ignored
func (r *positionRepository) InsertBatch(msgs []*models.SBSMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO position_reports (
		timestamp, icao, transmission_type, callsign, altitude, lat, lon, ground_speed, track, raw
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if _, err := stmt.Exec(
			msg.Timestamp,
			msg.ICAO,
			msg.TransmissionType,
			nullString(msg.Callsign),
			nullFloat(msg.AltitudeFt, msg.HasAltitude),
			nullFloat(msg.Lat, msg.HasPosition),
			nullFloat(msg.Lon, msg.HasPosition),
			nullFloat(msg.GroundSpeedKts, msg.HasVelocity),
			nullFloat(msg.Track, msg.HasVelocity),
			msg.Raw,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *positionRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM position_reports").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count position reports: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}
