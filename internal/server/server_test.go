package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/prometheus/client_golang/prometheus"
)

type seekCloser struct {
	*bytes.Reader
}

func (seekCloser) Close() error { return nil }

type mockManual struct {
	mu       sync.Mutex
	source   interfaces.ManualSource
	content  string
	seekable bool
	forced   []bool
	result   interfaces.SyncResult
}

func (m *mockManual) CheckForUpdate(ctx context.Context, force bool) interfaces.SyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, force)
	r := m.result
	r.Forced = force
	return r
}

func (m *mockManual) ResolvePreferredSource() interfaces.ManualSource {
	return m.source
}

func (m *mockManual) Open(source interfaces.ManualSource) (io.ReadCloser, error) {
	if m.seekable {
		return seekCloser{bytes.NewReader([]byte(m.content))}, nil
	}
	return io.NopCloser(strings.NewReader(m.content)), nil
}

func (m *mockManual) Status() interfaces.ManualStatus {
	return interfaces.ManualStatus{
		URL:       "https://example.com/m.pdf",
		Preferred: m.source,
		State:     "idle",
		ETag:      `"v1"`,
	}
}

func (m *mockManual) IsUpdating() bool { return false }

type mockDevice struct{}

func (mockDevice) HealthCheck(ctx context.Context, endpoint string) error { return nil }

func (mockDevice) Status(ctx context.Context) (interfaces.DeviceStatus, error) {
	return interfaces.DeviceStatus{URL: "http://192.168.4.1/", Reachable: true, StatusCode: 200, Latency: 12 * time.Millisecond}, nil
}

func (mockDevice) WaitForDevice(ctx context.Context) error { return nil }

func cachedSource() interfaces.ManualSource {
	return interfaces.ManualSource{Kind: interfaces.SourceCached, Label: "Cached manual", Name: "ZT-100-Manual.pdf"}
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestManualEndpoint(t *testing.T) {
	for _, seekable := range []bool{true, false} {
		manual := &mockManual{source: cachedSource(), content: "%PDF-1.4 cached", seekable: seekable}
		s := New(manual, nil, nil)

		rec := serve(t, s, http.MethodGet, "/manual")
		if rec.Code != http.StatusOK {
			t.Fatalf("seekable=%t: expected 200, got %d", seekable, rec.Code)
		}
		if got := rec.Header().Get(SourceHeader); got != "Cached manual" {
			t.Errorf("seekable=%t: expected source header, got %q", seekable, got)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
			t.Errorf("seekable=%t: expected application/pdf, got %q", seekable, got)
		}
		if rec.Body.String() != manual.content {
			t.Errorf("seekable=%t: unexpected body %q", seekable, rec.Body.String())
		}

		head := serve(t, s, http.MethodHead, "/manual")
		if head.Code != http.StatusOK || head.Body.Len() != 0 {
			t.Errorf("seekable=%t: expected empty 200 for HEAD, got %d with %d bytes", seekable, head.Code, head.Body.Len())
		}
	}
}

func TestManualEndpoint_Unavailable(t *testing.T) {
	manual := &mockManual{source: interfaces.ManualSource{Kind: interfaces.SourceUnavailable, Label: "Unavailable"}}

	rec := serve(t, New(manual, nil, nil), http.MethodGet, "/manual")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	manual := &mockManual{source: cachedSource()}

	rec := serve(t, New(manual, nil, nil), http.MethodGet, "/manual/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status interfaces.ManualStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if status.ETag != `"v1"` || status.Preferred.Kind != interfaces.SourceCached {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		target string
		code   int
		forced bool
	}{
		{"/manual/check", http.StatusOK, false},
		{"/manual/check?force=true", http.StatusOK, true},
		{"/manual/check?force=1", http.StatusOK, true},
		{"/manual/check?force=maybe", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			manual := &mockManual{result: interfaces.SyncResult{Outcome: interfaces.OutcomeNoChange}}

			rec := serve(t, New(manual, nil, nil), http.MethodPost, tt.target)
			if rec.Code != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, rec.Code)
			}
			if tt.code != http.StatusOK {
				if len(manual.forced) != 0 {
					t.Error("Expected no check for a rejected request")
				}
				return
			}

			var result interfaces.SyncResult
			if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if result.Outcome != interfaces.OutcomeNoChange || result.Forced != tt.forced {
				t.Errorf("Unexpected result %+v", result)
			}
		})
	}
}

func TestCheckEndpoint_RejectsGet(t *testing.T) {
	rec := serve(t, New(&mockManual{}, nil, nil), http.MethodGet, "/manual/check")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestOptionalRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "zt100_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	withAll := New(&mockManual{}, mockDevice{}, reg)

	rec := serve(t, withAll, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "zt100_test_total 1") {
		t.Errorf("Unexpected metrics response %d:\n%s", rec.Code, rec.Body.String())
	}

	rec = serve(t, withAll, http.MethodGet, "/device/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"reachable":true`) {
		t.Errorf("Unexpected device response %d: %s", rec.Code, rec.Body.String())
	}

	bare := New(&mockManual{}, nil, nil)
	if rec := serve(t, bare, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for metrics without a gatherer, got %d", rec.Code)
	}
	if rec := serve(t, bare, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from healthz, got %d", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&mockManual{}, nil, nil).Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Server did not shut down")
	}
}
