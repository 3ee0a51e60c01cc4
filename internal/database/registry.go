package database

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"skyroute/internal/models"
)

type RegistryRepository interface {
	InsertBatch(entries []*models.RegistryEntry) error
	IsTablePopulated() (bool, error)
	LoadFromMultipleCSV(csvPaths []string, batchSize int) error
	Lookup(icao24 string) (*models.RegistryEntry, error)
}

type registryRepository struct {
	db *sql.DB
}

func NewRegistryRepository(db *sql.DB) RegistryRepository {
	return &registryRepository{db: db}
}

// InsertBatch upserts registry rows in a single transaction
func (r *registryRepository) InsertBatch(entries []*models.RegistryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO aircraft_registry (
		icao24, registration, typecode, manufacturerName, model,
		operator, operatorCallsign, operatorIcao, categoryDescription
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(
			strings.ToLower(e.ICAO24), e.Registration, e.TypeCode, e.ManufacturerName, e.Model,
			e.Operator, e.OperatorCallsign, e.OperatorICAO, e.CategoryDescription,
		); err != nil {
			return fmt.Errorf("failed to insert registry entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *registryRepository) IsTablePopulated() (bool, error) {
	var ignored int
	err := r.db.QueryRow("SELECT 1 FROM aircraft_registry LIMIT 1").Scan(&ignored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check registry table: %w", err)
	}
	return true, nil
}

// Lookup returns the registry row for an ICAO address, or nil when the address is unknown
func (r *registryRepository) Lookup(icao24 string) (*models.RegistryEntry, error) {
	var e models.RegistryEntry
	err := r.db.QueryRow(`SELECT icao24, registration, typecode, manufacturerName, model,
		operator, operatorCallsign, operatorIcao, categoryDescription
		FROM aircraft_registry WHERE icao24 = ?`, strings.ToLower(icao24)).Scan(
		&e.ICAO24, &e.Registration, &e.TypeCode, &e.ManufacturerName, &e.Model,
		&e.Operator, &e.OperatorCallsign, &e.OperatorICAO, &e.CategoryDescription,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", icao24, err)
	}
	return &e, nil
}

// LoadFromMultipleCSV loads the OpenSky aircraft database export, which ships split
// across several files sharing the header of the first one
func (r *registryRepository) LoadFromMultipleCSV(csvPaths []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	l := &csvLoader{repo: r, batch: make([]*models.RegistryEntry, 0, batchSize), batchSize: batchSize}
	for i, path := range csvPaths {
		if err := l.loadFile(path, i == 0); err != nil {
			return err
		}
	}

	if err := l.flush(); err != nil {
		return fmt.Errorf("failed to insert final batch: %w", err)
	}
	return nil
}

type csvLoader struct {
	repo           *registryRepository
	headerMap      map[string]int
	expectedFields int
	batch          []*models.RegistryEntry
	batchSize      int
}

func (l *csvLoader) loadFile(csvPath string, first bool) error {
	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header from %s: %w", csvPath, err)
	}

	if first || l.headerMap == nil {
		l.expectedFields = len(header)
		l.headerMap = make(map[string]int, len(header))
		for i, h := range header {
			l.headerMap[strings.Trim(strings.TrimSpace(h), "'\"")] = i
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record from %s: %w", csvPath, err)
		}

		if len(record) != l.expectedFields {
			continue
		}

		entry := &models.RegistryEntry{
			ICAO24:              getField(record, l.headerMap, "icao24"),
			Registration:        getField(record, l.headerMap, "registration"),
			TypeCode:            getField(record, l.headerMap, "typecode"),
			ManufacturerName:    getField(record, l.headerMap, "manufacturerName"),
			Model:               getField(record, l.headerMap, "model"),
			Operator:            getField(record, l.headerMap, "operator"),
			OperatorCallsign:    getField(record, l.headerMap, "operatorCallsign"),
			OperatorICAO:        getField(record, l.headerMap, "operatorIcao"),
			CategoryDescription: getField(record, l.headerMap, "categoryDescription"),
		}
		if entry.ICAO24 == "" {
			continue
		}

		l.batch = append(l.batch, entry)
		if len(l.batch) >= l.batchSize {
			if err := l.flush(); err != nil {
				return fmt.Errorf("failed to insert batch: %w", err)
			}
		}
	}

	return nil
}

func (l *csvLoader) flush() error {
	if len(l.batch) == 0 {
		return nil
	}
	if err := l.repo.InsertBatch(l.batch); err != nil {
		return err
	}
	l.batch = l.batch[:0]
	return nil
}

// getField safely retrieves a field from a CSV record by header name
func getField(record []string, headerMap map[string]int, fieldName string) string {
	if idx, ok := headerMap[fieldName]; ok && idx < len(record) {
		return strings.Trim(strings.TrimSpace(record[idx]), "'\"")
	}
	return ""
}
