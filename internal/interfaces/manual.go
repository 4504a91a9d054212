package interfaces

import (
	"context"
	"io"
	"time"
)

// ManualManager keeps the cached copy of the device manual fresh and decides
// which copy to present.
type ManualManager interface {
	CheckForUpdate(ctx context.Context, force bool) SyncResult
	ResolvePreferredSource() ManualSource
	Open(source ManualSource) (io.ReadCloser, error)
	Status() ManualStatus
	IsUpdating() bool
}

// SyncOutcome is the path a single update check took
type SyncOutcome string

const (
	OutcomeAlreadyRunning SyncOutcome = "already_running"
	OutcomeThrottled      SyncOutcome = "throttled"
	OutcomeNoChange       SyncOutcome = "no_change"
	OutcomeIdentical      SyncOutcome = "identical"
	OutcomeInstalled      SyncOutcome = "installed"
	OutcomeFailed         SyncOutcome = "failed"
)

// Skipped reports whether the check returned at a guard, before touching
// persisted state or the network.
func (o SyncOutcome) Skipped() bool {
	return o == OutcomeAlreadyRunning || o == OutcomeThrottled
}

// FailureReason names the stage at which a failed check stopped
type FailureReason string

const (
	ReasonNone     FailureReason = ""
	ReasonProbe    FailureReason = "probe"
	ReasonDownload FailureReason = "download"
	ReasonInstall  FailureReason = "install"
)

// SyncResult describes the result of one CheckForUpdate call
type SyncResult struct {
	RunID        string        `json:"run_id,omitempty"`
	Outcome      SyncOutcome   `json:"outcome"`
	Reason       FailureReason `json:"reason,omitempty"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
	Forced       bool          `json:"forced"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	ETag         string        `json:"etag,omitempty"`
	LastModified string        `json:"last_modified,omitempty"`
	Bytes        int64         `json:"bytes,omitempty"`
	SHA256       string        `json:"sha256,omitempty"`
}

// SourceKind identifies which artifact a ManualSource refers to
type SourceKind string

const (
	SourceCached      SourceKind = "cached"
	SourceBundled     SourceKind = "bundled"
	SourceUnavailable SourceKind = "unavailable"
)

// ManualSource is the artifact chosen for display
type ManualSource struct {
	Kind  SourceKind `json:"kind"`
	Label string     `json:"label"`
	// Path is the on-disk location, empty for an embedded bundle.
	Path string `json:"path,omitempty"`
	Name string `json:"name"`
}

// Available reports whether the source refers to an existing artifact
func (s ManualSource) Available() bool {
	return s.Kind == SourceCached || s.Kind == SourceBundled
}

// ManualStatus is the observable state of the manual synchronizer
type ManualStatus struct {
	URL            string       `json:"url"`
	CachePath      string       `json:"cache_path"`
	CachePresent   bool         `json:"cache_present"`
	BundledPresent bool         `json:"bundled_present"`
	Preferred      ManualSource `json:"preferred"`
	Updating       bool         `json:"updating"`
	State          string       `json:"state"`
	LastChecked    *time.Time   `json:"last_checked,omitempty"`
	LastUpdated    *time.Time   `json:"last_updated,omitempty"`
	ETag           string       `json:"etag,omitempty"`
	LastModified   string       `json:"last_modified,omitempty"`
	CacheSize      int64        `json:"cache_size,omitempty"`
}
