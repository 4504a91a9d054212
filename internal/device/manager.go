// Package device checks whether the ZT-100 control panel answers on the
// local network. Joining the device's access point is left to the OS.
package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
)

var logger = loggo.GetLogger("zt100.device")

const (
	// DefaultURL is the control panel address while joined to the device access point
	DefaultURL = "http://192.168.4.1/"
	// DefaultTimeout bounds a single reachability request
	DefaultTimeout = 5 * time.Second
)

// Manager implements the DeviceManager interface
type Manager struct {
	url        string
	httpClient *http.Client
	clock      clock.Clock

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewManager creates a new DeviceManager for the control panel at url
func NewManager(url string, timeout time.Duration) *Manager {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Manager{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:       clock.WallClock,
		maxAttempts: 10,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// WithClock replaces the clock used between attempts of WaitForDevice
func (m *Manager) WithClock(clk clock.Clock) *Manager {
	m.clock = clk
	return m
}

// URL is the control panel address this manager probes
func (m *Manager) URL() string {
	return m.url
}

// HealthCheck performs a GET on the given endpoint and expects a 2xx answer
func (m *Manager) HealthCheck(ctx context.Context, endpoint string) error {
	_, err := m.probe(ctx, endpoint)
	return err
}

func (m *Manager) probe(ctx context.Context, endpoint string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, errors.NewDeviceError("failed to create health check request", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, errors.NewDeviceError("device did not answer", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.NewDeviceError(fmt.Sprintf("device returned status %d", resp.StatusCode), nil)
	}

	return resp.StatusCode, nil
}

// Status queries the control panel once
func (m *Manager) Status(ctx context.Context) (interfaces.DeviceStatus, error) {
	status := interfaces.DeviceStatus{URL: m.url}

	start := m.clock.Now()
	code, err := m.probe(ctx, m.url)
	status.Latency = m.clock.Now().Sub(start)
	status.StatusCode = code

	if err != nil {
		logger.Debugf("device at %s unreachable: %v", m.url, err)
		// Unreachable is a valid status, not a failure of the query
		return status, nil
	}

	status.Reachable = true
	return status, nil
}

// WaitForDevice polls the control panel with exponential backoff until it answers
func (m *Manager) WaitForDevice(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if lastErr = m.HealthCheck(ctx, m.url); lastErr == nil {
			return nil
		}
		logger.Tracef("attempt %d: %v", attempt+1, lastErr)

		// Calculate delay with exponential backoff
		delay := m.baseDelay * time.Duration(1<<uint(attempt))
		if delay > m.maxDelay {
			delay = m.maxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(delay):
		}
	}

	return errors.NewDeviceError(fmt.Sprintf("device did not answer after %d attempts", m.maxAttempts), lastErr)
}
