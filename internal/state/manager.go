package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	_ "github.com/mattn/go-sqlite3"
)

var logger = loggo.GetLogger("zt100.state")

// Manager implements the StateManager interface on top of SQLite
type Manager struct {
	db *sql.DB
}

// NewManager creates a new state manager instance
func NewManager() *Manager {
	return &Manager{}
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	details TEXT
);
`

// Initialize opens (creating if needed) the SQLite database with the required schema
func (m *Manager) Initialize(dbPath string) error {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewGenericError("failed to create state directory", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return errors.NewGenericError("failed to open database", err)
	}

	// Test the database connection to detect corruption early
	if err := db.Ping(); err != nil {
		db.Close()
		return errors.NewGenericError("database file is corrupted or inaccessible", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		if isCorruptionError(err) {
			return errors.NewGenericError("database file is corrupted and cannot be initialized", err)
		}
		return errors.NewGenericError("failed to create database schema", err)
	}

	m.db = db
	logger.Debugf("state database ready at %s", dbPath)
	return nil
}

// isCorruptionError checks if an error indicates database corruption
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"database disk image is malformed",
		"file is not a database",
		"database is locked",
		"database corruption",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapDBError(message string, err error) error {
	if isCorruptionError(err) {
		return errors.NewGenericError("database file is corrupted", err)
	}
	return errors.NewGenericError(message, err)
}

func (m *Manager) ensureOpen() error {
	if m.db == nil {
		return errors.NewGenericError("database not initialized", nil)
	}
	return nil
}

// GetString returns the stored value for key
func (m *Manager) GetString(key string) (string, bool, error) {
	if err := m.ensureOpen(); err != nil {
		return "", false, err
	}

	var value string
	err := m.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapDBError(fmt.Sprintf("failed to read setting %s", key), err)
	}
	return value, true, nil
}

// SetString stores value under key, replacing any previous value
func (m *Manager) SetString(key string, value string) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}

	if _, err := m.db.Exec(
		"INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UTC(),
	); err != nil {
		return wrapDBError(fmt.Sprintf("failed to store setting %s", key), err)
	}
	return nil
}

// GetTime returns the timestamp stored under key
func (m *Manager) GetTime(key string) (time.Time, bool, error) {
	raw, ok, err := m.GetString(key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}

	ts, err := parseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, errors.NewGenericError(fmt.Sprintf("failed to parse timestamp for %s", key), err)
	}
	return ts, true, nil
}

// SetTime stores a timestamp under key
func (m *Manager) SetTime(key string, value time.Time) error {
	return m.SetString(key, value.UTC().Format(time.RFC3339Nano))
}

// parseTimestamp accepts the formats SQLite and older versions may have written
func parseTimestamp(raw string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.DateTime,
	}

	var parseErr error
	for _, format := range formats {
		ts, err := time.Parse(format, raw)
		if err == nil {
			return ts, nil
		}
		parseErr = err
	}
	return time.Time{}, parseErr
}

// RecordSync appends an entry to the synchronization history
func (m *Manager) RecordSync(record interfaces.SyncRecord) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}

	if _, err := m.db.Exec(
		"INSERT INTO sync_history (run_id, operation, timestamp, status, details) VALUES (?, ?, ?, ?, ?)",
		record.RunID,
		record.Operation,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		record.Status,
		record.Details,
	); err != nil {
		return wrapDBError("failed to record sync history", err)
	}
	return nil
}

// History returns the most recent history entries, newest first. A limit of
// zero or less returns every entry.
func (m *Manager) History(limit int) ([]interfaces.SyncRecord, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}

	query := "SELECT run_id, operation, timestamp, status, COALESCE(details, '') FROM sync_history ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, wrapDBError("failed to query sync history", err)
	}
	defer rows.Close()

	var records []interfaces.SyncRecord
	for rows.Next() {
		var (
			record interfaces.SyncRecord
			ts     string
		)
		if err := rows.Scan(&record.RunID, &record.Operation, &ts, &record.Status, &record.Details); err != nil {
			return nil, wrapDBError("failed to scan sync history row", err)
		}
		if parsed, err := parseTimestamp(ts); err == nil {
			record.Timestamp = parsed
		} else {
			logger.Warningf("unparseable history timestamp %q: %v", ts, err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBError("failed to iterate sync history", err)
	}

	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}

	if err := m.db.Close(); err != nil {
		return errors.NewGenericError("failed to close database", err)
	}

	m.db = nil
	return nil
}
