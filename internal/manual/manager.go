// Package manual keeps an offline copy of the ZT-100 user manual in sync with
// the copy published online.
//
// A check costs one HEAD request when the server's ETag or Last-Modified
// proves nothing changed. Otherwise the manual is downloaded next to the cache
// file, compared by SHA256 with the cached copy, and renamed into place only
// when it differs. The cache path is never written directly, so it always
// holds either the previous complete manual or the new complete manual.
package manual

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
)

var logger = loggo.GetLogger("zt100.manual")

// Keys of the persisted sync state
const (
	KeyLastUpdated  = "manual.last_updated"
	KeyLastChecked  = "manual.last_checked"
	KeyETag         = "manual.etag"
	KeyLastModified = "manual.last_modified"
)

const (
	// DefaultMinCheckInterval is the throttle applied to unforced checks
	DefaultMinCheckInterval = 6 * time.Hour
	// DefaultFileName is the name of the cached manual inside the cache directory
	DefaultFileName = "ZT-100-Manual.pdf"

	staleDownloadAge = time.Hour
	historyOperation = "manual_check"
)

// SyncState is the phase of the synchronizer
type SyncState int

const (
	StateIdle SyncState = iota
	StateChecking
	StateDownloading
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateDownloading:
		return "downloading"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// Config holds the synchronizer settings
type Config struct {
	URL              string
	CacheDir         string
	FileName         string
	MinCheckInterval time.Duration
}

// HistoryRecorder receives one record per check that got past the guards
type HistoryRecorder interface {
	RecordSync(record interfaces.SyncRecord) error
}

// Option customises a Manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithFetcher replaces the HTTP fetcher
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithBundle replaces the embedded fallback manual; nil means no bundle
func WithBundle(b *Bundle) Option {
	return func(m *Manager) { m.bundle = b }
}

// WithHistory records every check in h
func WithHistory(h HistoryRecorder) Option {
	return func(m *Manager) { m.history = h }
}

// WithMetrics exports check outcomes through metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager implements the ManualManager interface
type Manager struct {
	config  Config
	store   interfaces.SettingsStore
	fetcher Fetcher
	bundle  *Bundle
	clock   clock.Clock
	history HistoryRecorder
	metrics *Metrics
	// fingerprint hashes the cached manual before an install
	fingerprint func(path string) (string, error)

	mu    sync.Mutex
	state SyncState
}

// NewManager creates a synchronizer persisting its state in store
func NewManager(config Config, store interfaces.SettingsStore, opts ...Option) *Manager {
	if config.FileName == "" {
		config.FileName = DefaultFileName
	}
	if config.MinCheckInterval <= 0 {
		config.MinCheckInterval = DefaultMinCheckInterval
	}

	m := &Manager{
		config:  config,
		store:   store,
		fetcher: NewHTTPFetcher(DefaultProbeTimeout, DefaultDownloadTimeout),
		bundle:  EmbeddedBundle(),
		clock:   clock.WallClock,

		fingerprint: hashFile,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CachePath is the location of the cached manual
func (m *Manager) CachePath() string {
	return filepath.Join(m.config.CacheDir, m.config.FileName)
}

// State returns the current phase of the synchronizer
func (m *Manager) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsUpdating reports whether a check is in flight
func (m *Manager) IsUpdating() bool {
	return m.State() != StateIdle
}

// begin moves Idle to Checking; it fails when a check is already in flight
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.state = StateChecking
	m.metrics.setUpdating(true)
	return true
}

func (m *Manager) setState(s SyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.metrics.setUpdating(s != StateIdle)
}

// CheckForUpdate refreshes the cached manual when the remote copy changed.
// Unless force is set, it does nothing when the previous check is more recent
// than the minimum interval. It never fails; the result says what happened.
func (m *Manager) CheckForUpdate(ctx context.Context, force bool) interfaces.SyncResult {
	result := interfaces.SyncResult{
		Forced:    force,
		StartedAt: m.clock.Now(),
	}

	if !m.begin() {
		logger.Debugf("update check already in progress")
		result.Outcome = interfaces.OutcomeAlreadyRunning
		return m.finish(result)
	}
	defer m.setState(StateIdle)

	if !force && m.throttled(result.StartedAt) {
		result.Outcome = interfaces.OutcomeThrottled
		return m.finish(result)
	}

	result.RunID = uuid.NewString()
	if err := m.store.SetTime(KeyLastChecked, result.StartedAt); err != nil {
		logger.Warningf("[%s] cannot record check time: %v", result.RunID, err)
	}

	m.sync(ctx, &result)

	result = m.finish(result)
	m.record(result)
	return result
}

// throttled reports whether the last check is too recent for an unforced check
func (m *Manager) throttled(now time.Time) bool {
	last, ok, err := m.store.GetTime(KeyLastChecked)
	if err != nil {
		logger.Warningf("cannot read last check time, checking anyway: %v", err)
		return false
	}
	if !ok || last.After(now) {
		return false
	}
	return now.Sub(last) < m.config.MinCheckInterval
}

// sync runs one check past the guards, filling in result
func (m *Manager) sync(ctx context.Context, result *interfaces.SyncResult) {
	runID := result.RunID
	if n := removeStaleDownloads(m.config.CacheDir, m.clock.Now(), staleDownloadAge); n > 0 {
		logger.Debugf("[%s] removed %d abandoned downloads", runID, n)
	}

	_, cached := fileExists(m.CachePath())
	stored := m.storedValidators()

	remote, err := m.fetcher.Probe(ctx, m.config.URL)
	switch {
	case err != nil && cached:
		logger.Infof("[%s] manual probe failed, keeping cached copy: %v", runID, err)
		fail(result, interfaces.ReasonProbe, err)
		return
	case err != nil:
		logger.Infof("[%s] manual probe failed with no cached copy, downloading anyway: %v", runID, err)
	default:
		result.ETag, result.LastModified = remote.ETag, remote.LastModified
		if !ShouldFetch(cached, stored, remote) {
			logger.Debugf("[%s] manual unchanged (etag %q, last-modified %q)", runID, remote.ETag, remote.LastModified)
			m.storeValidators(runID, remote)
			result.Outcome = interfaces.OutcomeNoChange
			return
		}
	}

	m.setState(StateDownloading)
	dl, err := m.download(ctx)
	if err != nil {
		logger.Infof("[%s] manual download failed, cache untouched: %v", runID, err)
		fail(result, interfaces.ReasonDownload, err)
		return
	}
	defer os.Remove(dl.path)

	validators := dl.validators.orElse(remote)
	result.ETag, result.LastModified = validators.ETag, validators.LastModified
	result.Bytes, result.SHA256 = dl.size, dl.sha256

	if cached {
		existing, err := m.fingerprint(m.CachePath())
		switch {
		case err != nil:
			logger.Warningf("[%s] cannot fingerprint cached manual, installing download: %v", runID, err)
		case existing == dl.sha256:
			logger.Debugf("[%s] downloaded manual identical to cached copy", runID)
			m.storeValidators(runID, validators)
			result.Outcome = interfaces.OutcomeIdentical
			return
		}
	}

	if err := install(dl.path, m.CachePath()); err != nil {
		logger.Errorf("[%s] cannot install manual: %v", runID, err)
		fail(result, interfaces.ReasonInstall, err)
		return
	}

	if err := m.store.SetTime(KeyLastUpdated, m.clock.Now()); err != nil {
		logger.Warningf("[%s] cannot record update time: %v", runID, err)
	}
	m.storeValidators(runID, validators)
	logger.Infof("[%s] installed new manual (%d bytes, sha256 %s)", runID, dl.size, dl.sha256)
	result.Outcome = interfaces.OutcomeInstalled
}

// download streams the remote manual into a temporary file in the cache directory
func (m *Manager) download(ctx context.Context) (dl *download, err error) {
	f, err := createTemp(m.config.CacheDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			f.Close()
			if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warningf("cannot remove temporary file: %v", rmErr)
			}
		}
	}()

	hw := newHashingWriter(f)
	validators, n, err := m.fetcher.Fetch(ctx, m.config.URL, hw)
	if err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, errors.NewSyncError("failed to flush download", err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewSyncError("failed to close download", err)
	}

	return &download{
		path:       f.Name(),
		size:       n,
		sha256:     hw.sum(),
		validators: validators,
	}, nil
}

// ShouldFetch decides whether the full manual must be downloaded. The ETag
// takes precedence over Last-Modified; without either, the answer is yes.
func ShouldFetch(cached bool, stored, remote Validators) bool {
	switch {
	case !cached:
		return true
	case remote.ETag != "":
		return remote.ETag != stored.ETag
	case remote.LastModified != "":
		return remote.LastModified != stored.LastModified
	default:
		return true
	}
}

func (m *Manager) storedValidators() Validators {
	var v Validators
	var err error
	if v.ETag, _, err = m.store.GetString(KeyETag); err != nil {
		logger.Warningf("cannot read stored etag: %v", err)
	}
	if v.LastModified, _, err = m.store.GetString(KeyLastModified); err != nil {
		logger.Warningf("cannot read stored last-modified: %v", err)
	}
	return v
}

func (m *Manager) storeValidators(runID string, v Validators) {
	if err := m.store.SetString(KeyETag, v.ETag); err != nil {
		logger.Warningf("[%s] cannot store etag: %v", runID, err)
	}
	if err := m.store.SetString(KeyLastModified, v.LastModified); err != nil {
		logger.Warningf("[%s] cannot store last-modified: %v", runID, err)
	}
}

func fail(result *interfaces.SyncResult, reason interfaces.FailureReason, err error) {
	result.Outcome = interfaces.OutcomeFailed
	result.Reason = reason
	result.Err = err
}

func (m *Manager) finish(result interfaces.SyncResult) interfaces.SyncResult {
	result.FinishedAt = m.clock.Now()
	if result.Err != nil {
		result.Error = result.Err.Error()
	}
	m.metrics.observe(result)
	return result
}

// record appends the result to the sync history
func (m *Manager) record(result interfaces.SyncResult) {
	if m.history == nil {
		return
	}

	details := fmt.Sprintf("etag=%q last_modified=%q", result.ETag, result.LastModified)
	if result.Bytes > 0 {
		details += fmt.Sprintf(" bytes=%d sha256=%s", result.Bytes, result.SHA256)
	}
	if result.Err != nil {
		details = fmt.Sprintf("%s: %v", result.Reason, result.Err)
	}

	record := interfaces.SyncRecord{
		RunID:     result.RunID,
		Operation: historyOperation,
		Timestamp: result.FinishedAt,
		Status:    string(result.Outcome),
		Details:   details,
	}
	if err := m.history.RecordSync(record); err != nil {
		logger.Warningf("[%s] cannot record sync history: %v", result.RunID, err)
	}
}

// ResolvePreferredSource picks the cached manual, then the bundled one
func (m *Manager) ResolvePreferredSource() interfaces.ManualSource {
	if _, ok := fileExists(m.CachePath()); ok {
		return interfaces.ManualSource{
			Kind:  interfaces.SourceCached,
			Label: "Cached manual",
			Path:  m.CachePath(),
			Name:  m.config.FileName,
		}
	}
	if m.bundle.Present() {
		return interfaces.ManualSource{
			Kind:  interfaces.SourceBundled,
			Label: "Bundled manual",
			Path:  m.bundle.Path(),
			Name:  m.bundle.Name(),
		}
	}
	return interfaces.ManualSource{
		Kind:  interfaces.SourceUnavailable,
		Label: "Unavailable",
	}
}

// Open opens the artifact a source refers to
func (m *Manager) Open(source interfaces.ManualSource) (io.ReadCloser, error) {
	switch source.Kind {
	case interfaces.SourceCached:
		f, err := os.Open(source.Path)
		if err != nil {
			return nil, errors.NewGenericError("failed to open cached manual", err)
		}
		return f, nil
	case interfaces.SourceBundled:
		rc, err := m.bundle.Open()
		if err != nil {
			return nil, errors.NewGenericError("failed to open bundled manual", err)
		}
		return rc, nil
	default:
		return nil, errors.NewGenericError("no manual available", nil)
	}
}

// CachePresent reports whether a cached manual exists
func (m *Manager) CachePresent() bool {
	_, ok := fileExists(m.CachePath())
	return ok
}

// BundledPresent reports whether the bundled manual exists
func (m *Manager) BundledPresent() bool {
	return m.bundle.Present()
}

// LastChecked returns the time of the last check that passed the guards
func (m *Manager) LastChecked() (time.Time, bool) {
	ts, ok, err := m.store.GetTime(KeyLastChecked)
	if err != nil {
		logger.Warningf("cannot read last check time: %v", err)
		return time.Time{}, false
	}
	return ts, ok
}

// LastUpdated returns the time the cached manual was last replaced
func (m *Manager) LastUpdated() (time.Time, bool) {
	ts, ok, err := m.store.GetTime(KeyLastUpdated)
	if err != nil {
		logger.Warningf("cannot read last update time: %v", err)
		return time.Time{}, false
	}
	return ts, ok
}

// Status snapshots the observable state of the synchronizer
func (m *Manager) Status() interfaces.ManualStatus {
	state := m.State()
	status := interfaces.ManualStatus{
		URL:            m.config.URL,
		CachePath:      m.CachePath(),
		BundledPresent: m.BundledPresent(),
		Preferred:      m.ResolvePreferredSource(),
		Updating:       state != StateIdle,
		State:          state.String(),
	}

	if info, ok := fileExists(m.CachePath()); ok {
		status.CachePresent = true
		status.CacheSize = info.Size()
	}
	if ts, ok := m.LastChecked(); ok {
		status.LastChecked = &ts
	}
	if ts, ok := m.LastUpdated(); ok {
		status.LastUpdated = &ts
	}

	stored := m.storedValidators()
	status.ETag, status.LastModified = stored.ETag, stored.LastModified
	return status
}
