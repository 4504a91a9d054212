package state

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager := NewManager()
	if err := manager.Initialize(filepath.Join(t.TempDir(), "state.db")); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestInitialize(t *testing.T) {
	t.Run("creates database file and parent directory", func(t *testing.T) {
		statePath := filepath.Join(t.TempDir(), "nested", "state.db")

		manager := NewManager()
		defer manager.Close()

		if err := manager.Initialize(statePath); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		if _, err := os.Stat(statePath); os.IsNotExist(err) {
			t.Fatal("State database was not created")
		}
	})

	t.Run("rejects a corrupted database file", func(t *testing.T) {
		statePath := filepath.Join(t.TempDir(), "corrupted.db")
		garbage := bytes.Repeat([]byte("not a sqlite database {{{ "), 64)
		if err := os.WriteFile(statePath, garbage, 0600); err != nil {
			t.Fatalf("Failed to create corrupted file: %v", err)
		}

		manager := NewManager()
		defer manager.Close()

		if err := manager.Initialize(statePath); err == nil {
			t.Fatal("Expected error for corrupted database, got nil")
		}
	})

	t.Run("reopens existing state", func(t *testing.T) {
		statePath := filepath.Join(t.TempDir(), "state.db")

		first := NewManager()
		if err := first.Initialize(statePath); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if err := first.SetString("manual.etag", `"abc"`); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
		first.Close()

		second := NewManager()
		defer second.Close()
		if err := second.Initialize(statePath); err != nil {
			t.Fatalf("second Initialize failed: %v", err)
		}

		value, ok, err := second.GetString("manual.etag")
		if err != nil {
			t.Fatalf("GetString failed: %v", err)
		}
		if !ok || value != `"abc"` {
			t.Errorf("Expected persisted value %q, got %q (ok=%t)", `"abc"`, value, ok)
		}
	})
}

func TestStrings(t *testing.T) {
	t.Run("missing key reports not ok", func(t *testing.T) {
		manager := newTestManager(t)

		value, ok, err := manager.GetString("manual.etag")
		if err != nil {
			t.Fatalf("GetString failed: %v", err)
		}
		if ok || value != "" {
			t.Errorf("Expected missing key, got %q (ok=%t)", value, ok)
		}
	})

	t.Run("set replaces previous value", func(t *testing.T) {
		manager := newTestManager(t)

		if err := manager.SetString("manual.last_modified", "Mon, 01 Jan 2024 00:00:00 GMT"); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
		if err := manager.SetString("manual.last_modified", "Tue, 02 Jan 2024 00:00:00 GMT"); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}

		value, _, err := manager.GetString("manual.last_modified")
		if err != nil {
			t.Fatalf("GetString failed: %v", err)
		}
		if value != "Tue, 02 Jan 2024 00:00:00 GMT" {
			t.Errorf("Expected replaced value, got %q", value)
		}
	})

	t.Run("empty string is a stored value", func(t *testing.T) {
		manager := newTestManager(t)

		if err := manager.SetString("manual.etag", ""); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
		_, ok, err := manager.GetString("manual.etag")
		if err != nil {
			t.Fatalf("GetString failed: %v", err)
		}
		if !ok {
			t.Error("Expected empty string to be reported as present")
		}
	})
}

func TestProperty_StringsRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	properties := gopter.NewProperties(nil)

	properties.Property("stored strings are returned unchanged",
		prop.ForAll(
			func(key string, value string) bool {
				if err := manager.SetString(key, value); err != nil {
					t.Logf("SetString failed: %v", err)
					return false
				}
				got, ok, err := manager.GetString(key)
				return err == nil && ok && got == value
			},
			gen.Identifier(),
			gen.AlphaString(),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestTimes(t *testing.T) {
	t.Run("round trips with nanosecond precision", func(t *testing.T) {
		manager := newTestManager(t)
		expected := time.Date(2024, 3, 9, 14, 30, 5, 123456789, time.FixedZone("X", 3600))

		if err := manager.SetTime("manual.last_checked", expected); err != nil {
			t.Fatalf("SetTime failed: %v", err)
		}

		got, ok, err := manager.GetTime("manual.last_checked")
		if err != nil {
			t.Fatalf("GetTime failed: %v", err)
		}
		if !ok {
			t.Fatal("Expected timestamp to be present")
		}
		if !got.Equal(expected) {
			t.Errorf("Expected %v, got %v", expected, got)
		}
	})

	t.Run("missing key reports not ok", func(t *testing.T) {
		manager := newTestManager(t)

		got, ok, err := manager.GetTime("manual.last_updated")
		if err != nil {
			t.Fatalf("GetTime failed: %v", err)
		}
		if ok || !got.IsZero() {
			t.Errorf("Expected zero time, got %v (ok=%t)", got, ok)
		}
	})

	t.Run("unparseable value is an error", func(t *testing.T) {
		manager := newTestManager(t)

		if err := manager.SetString("manual.last_updated", "yesterday"); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
		if _, _, err := manager.GetTime("manual.last_updated"); err == nil {
			t.Fatal("Expected parse error, got nil")
		}
	})
}

func TestHistory(t *testing.T) {
	t.Run("returns newest first and honours limit", func(t *testing.T) {
		manager := newTestManager(t)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, status := range []string{"no_change", "installed", "failed"} {
			record := interfaces.SyncRecord{
				RunID:     string(rune('a' + i)),
				Operation: "manual_check",
				Timestamp: base.Add(time.Duration(i) * time.Hour),
				Status:    status,
				Details:   "detail",
			}
			if err := manager.RecordSync(record); err != nil {
				t.Fatalf("RecordSync failed: %v", err)
			}
		}

		records, err := manager.History(2)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].Status != "failed" || records[1].Status != "installed" {
			t.Errorf("Unexpected order: %+v", records)
		}
		if !records[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("Expected timestamp %v, got %v", base.Add(2*time.Hour), records[0].Timestamp)
		}

		all, err := manager.History(0)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("Expected 3 records, got %d", len(all))
		}
	})
}

func TestUninitialized(t *testing.T) {
	manager := NewManager()

	if _, _, err := manager.GetString("k"); err == nil {
		t.Error("Expected error from GetString on uninitialized state")
	}
	if err := manager.SetTime("k", time.Now()); err == nil {
		t.Error("Expected error from SetTime on uninitialized state")
	}
	if err := manager.RecordSync(interfaces.SyncRecord{}); err == nil {
		t.Error("Expected error from RecordSync on uninitialized state")
	}
	if _, err := manager.History(1); err == nil {
		t.Error("Expected error from History on uninitialized state")
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Close on uninitialized manager should not error, got: %v", err)
	}
}
