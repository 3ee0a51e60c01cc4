package database

import (
	"database/sql"
	"fmt"

	"skyroute/internal/models"
)

type AlertRepository interface {
	InsertBatch(alerts []models.Alert) error
	Recent(limit int) ([]models.Alert, error)
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) InsertBatch(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO alerts (kind, title, message, severity, conflict_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.Exec(string(a.Kind), a.Title, a.Message, string(a.Severity), a.Key, a.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Recent returns up to limit alerts, newest first
func (r *alertRepository) Recent(limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`SELECT kind, title, message, severity, conflict_key, created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0, limit)
	for rows.Next() {
		var (
			a              models.Alert
			kind, severity string
		)
		if err := rows.Scan(&kind, &a.Title, &a.Message, &severity, &a.Key, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		a.Severity = models.Severity(severity)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

type ConflictRepository interface {
	InsertBatch(conflicts []models.ConflictRecord) error
	Count() (int, error)
}

type conflictRepository struct {
	db *sql.DB
}

func NewConflictRepository(db *sql.DB) ConflictRepository {
	return &conflictRepository{db: db}
}

// InsertBatch records conflicts; a key already stored is kept with its first detection time
func (r *conflictRepository) InsertBatch(conflicts []models.ConflictRecord) error {
	if len(conflicts) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO conflicts
		(type, flight1, flight2, distance_km, severity, conflict_key, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range conflicts {
		if _, err := stmt.Exec(c.Type, c.Flight1, c.Flight2, c.DistanceKm, string(c.Severity), c.Key, c.DetectedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert conflict: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *conflictRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM conflicts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}
