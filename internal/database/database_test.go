package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"skyroute/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "skyroute.db"))
	require.NoError(t, err)
	require.NotNil(t, db)

	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return db
}

func TestNew(t *testing.T) {
	db := setupTestDB(t)
	assert.NotNil(t, db)
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "skyroute.db"))
	assert.Error(t, err)
}

func TestPositionRepository_InsertBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := db.PositionRepository()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*models.SBSMessage{
		{
			Timestamp:        ts,
			TransmissionType: 3,
			ICAO:             "0D0A1B",
			AltitudeFt:       35000,
			Lat:              19.43,
			Lon:              -99.13,
			HasAltitude:      true,
			HasPosition:      true,
			Raw:              "MSG,3,1,1,0D0A1B,1,...",
		},
		{
			Timestamp:        ts.Add(time.Second),
			TransmissionType: 1,
			ICAO:             "0D0A1B",
			Callsign:         "AMX123",
			Raw:              "MSG,1,1,1,0D0A1B,1,...",
		},
	}

	require.NoError(t, repo.InsertBatch(msgs))

	// Same batch again is ignored by the unique constraint
	require.NoError(t, repo.InsertBatch(msgs))

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPositionRepository_InsertBatch_Empty(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PositionRepository().InsertBatch(nil))
}

func TestAlertRepository_Recent(t *testing.T) {
	db := setupTestDB(t)
	repo := db.AlertRepository()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		{Kind: models.AlertKindProximity, Title: "Proximity conflict", Message: "a", Severity: models.SeverityHigh, Key: "A-B", CreatedAt: base},
		{Kind: models.AlertKindZone, Title: "Restricted zone intrusion", Message: "b", Severity: models.SeverityCritical, Key: "A-Zone", CreatedAt: base.Add(time.Minute)},
		{Kind: models.AlertKindProximity, Title: "Proximity conflict", Message: "c", Severity: models.SeverityCritical, Key: "C-D", CreatedAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, repo.InsertBatch(alerts))

	got, err := repo.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C-D", got[0].Key)
	assert.Equal(t, "A-Zone", got[1].Key)
	assert.Equal(t, models.AlertKindZone, got[1].Kind)
	assert.Equal(t, models.SeverityCritical, got[1].Severity)
	assert.True(t, got[1].CreatedAt.Equal(base.Add(time.Minute)))

	all, err := repo.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConflictRepository_KeepsFirstDetection(t *testing.T) {
	db := setupTestDB(t)
	repo := db.ConflictRepository()

	c := models.ConflictRecord{
		Type:       models.ConflictTypeProximity,
		Flight1:    "AMX123",
		Flight2:    "VOI456",
		DistanceKm: 1.5,
		Severity:   models.SeverityCritical,
		Key:        "0D0A1B-0D0A1C",
		DetectedAt: time.Now(),
	}
	require.NoError(t, repo.InsertBatch([]models.ConflictRecord{c}))

	c.DistanceKm = 0.9
	require.NoError(t, repo.InsertBatch([]models.ConflictRecord{c}))

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

const registryCSVHeader = "'icao24','registration','typecode','manufacturerName','model','operator','operatorCallsign','operatorIcao','categoryDescription'\n"

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRegistryRepository_LoadFromMultipleCSV(t *testing.T) {
	db := setupTestDB(t)
	repo := db.RegistryRepository()

	populated, err := repo.IsTablePopulated()
	require.NoError(t, err)
	assert.False(t, populated)

	part1 := writeCSV(t, "aircraft_1.csv", registryCSVHeader+
		"'0d0a1b','XA-AMX','B738','Boeing','737-800','Aeromexico','AEROMEXICO','AMX',''\n"+
		"'','XA-XXX','','','','','','',''\n"+
		"'0d0a1c','XA-BAD'\n")
	part2 := writeCSV(t, "aircraft_2.csv", registryCSVHeader+
		"'a1b2c3','N123FX','B77L','Boeing','777F','FedEx Express','FEDEX','FDX','Cargo'\n")

	require.NoError(t, repo.LoadFromMultipleCSV([]string{part1, part2}, 1))

	populated, err = repo.IsTablePopulated()
	require.NoError(t, err)
	assert.True(t, populated)

	entry, err := repo.Lookup("0D0A1B")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "AMX", entry.OperatorICAO)
	assert.Equal(t, "737-800", entry.Model)

	entry, err = repo.Lookup("a1b2c3")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Cargo", entry.CategoryDescription)

	// Short record was skipped
	entry, err = repo.Lookup("0d0a1c")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRegistryRepository_MissingFile(t *testing.T) {
	db := setupTestDB(t)
	err := db.RegistryRepository().LoadFromMultipleCSV([]string{"/nonexistent/aircraft.csv"}, 10)
	assert.Error(t, err)
}
