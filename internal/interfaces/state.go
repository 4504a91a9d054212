package interfaces

import "time"

// SettingsStore is a key/value store for typed scalar settings that survive
// process restarts. Missing keys report ok == false rather than an error.
type SettingsStore interface {
	GetString(key string) (value string, ok bool, err error)
	SetString(key string, value string) error
	GetTime(key string) (value time.Time, ok bool, err error)
	SetTime(key string, value time.Time) error
}

// StateManager handles persistent state storage and synchronization history
type StateManager interface {
	SettingsStore
	Initialize(dbPath string) error
	RecordSync(record SyncRecord) error
	History(limit int) ([]SyncRecord, error)
	Close() error
}

// SyncRecord is one entry of the manual synchronization history
type SyncRecord struct {
	RunID     string
	Operation string
	Timestamp time.Time
	Status    string
	Details   string
}
