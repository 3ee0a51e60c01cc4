package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Repository is the storage handle owned by the daemon
type Repository interface {
	PositionRepository() PositionRepository
	AlertRepository() AlertRepository
	ConflictRepository() ConflictRepository
	RegistryRepository() RegistryRepository
	Close() error
}

// DB implements the Repository interface using SQLite
type DB struct {
	db *sql.DB
}

// New creates and initializes a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := optimizeSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to optimize database: %w", err)
	}

	database := &DB{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// optimizeSQLite tunes SQLite for a write-heavy single process
func optimizeSQLite(db *sql.DB) error {
	pragmas := []struct {
		stmt string
		desc string
	}{
		// WAL lets the HTTP handlers read while the collectors write
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		// 64MB page cache, held in RAM
		{"PRAGMA cache_size=-64000", "set cache size"},
		{"PRAGMA synchronous=NORMAL", "set synchronous mode"},
		{"PRAGMA temp_store=MEMORY", "set temp_store"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			return fmt.Errorf("failed to %s: %w", p.desc, err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// PositionRepository returns the repository for raw SBS position reports
func (d *DB) PositionRepository() PositionRepository {
	return NewPositionRepository(d.db)
}

// AlertRepository returns the repository for emitted alerts
func (d *DB) AlertRepository() AlertRepository {
	return NewAlertRepository(d.db)
}

// ConflictRepository returns the repository for proximity conflicts
func (d *DB) ConflictRepository() ConflictRepository {
	return NewConflictRepository(d.db)
}

// RegistryRepository returns the aircraft registry repository
func (d *DB) RegistryRepository() RegistryRepository {
	return NewRegistryRepository(d.db)
}

// initSchema creates the database schema if it doesn't exist
func (d *DB) initSchema() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS position_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP NOT NULL,
			icao TEXT NOT NULL,
			transmission_type INTEGER,
			callsign TEXT,
			altitude REAL,
			lat REAL,
			lon REAL,
			ground_speed REAL,
			track REAL,
			raw TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(icao, timestamp, raw)
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			conflict_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			flight1 TEXT NOT NULL,
			flight2 TEXT NOT NULL,
			distance_km REAL NOT NULL,
			severity TEXT NOT NULL,
			conflict_key TEXT NOT NULL UNIQUE,
			detected_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS aircraft_registry (
			icao24 TEXT PRIMARY KEY,
			registration TEXT,
			typecode TEXT,
			manufacturerName TEXT,
			model TEXT,
			operator TEXT,
			operatorCallsign TEXT,
			operatorIcao TEXT,
			categoryDescription TEXT
		);`,
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_position_reports_icao ON position_reports(icao)`,
		`CREATE INDEX IF NOT EXISTS idx_position_reports_timestamp ON position_reports(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_detected_at ON conflicts(detected_at)`,
	}

	for _, table := range tables {
		if _, err := d.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, idx := range indexes {
		if _, err := d.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
