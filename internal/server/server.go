// Package server exposes the manual and its sync state on a local HTTP port.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/loggo/v2"
	"github.com/k4lls/zt100/internal/errors"
	"github.com/k4lls/zt100/internal/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = loggo.GetLogger("zt100.server")

// DefaultAddr is the listen address used when none is configured
const DefaultAddr = "127.0.0.1:8100"

// SourceHeader carries the label of the manual copy being served
const SourceHeader = "X-Manual-Source"

// Server serves the manual endpoints
type Server struct {
	manual   interfaces.ManualManager
	device   interfaces.DeviceManager
	gatherer prometheus.Gatherer
}

// New creates a server. device and gatherer may be nil.
func New(manual interfaces.ManualManager, device interfaces.DeviceManager, gatherer prometheus.Gatherer) *Server {
	return &Server{
		manual:   manual,
		device:   device,
		gatherer: gatherer,
	}
}

// NewRouter wires the routes
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/manual", s.handleManual).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/manual/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/manual/check", s.handleCheck).Methods(http.MethodPost)
	if s.device != nil {
		r.HandleFunc("/device/status", s.handleDevice).Methods(http.MethodGet)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewGenericError("failed to listen on "+addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("serving manual on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.NewGenericError("server stopped", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.NewGenericError("failed to shut down server", err)
	}
	return nil
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	source := s.manual.ResolvePreferredSource()
	if !source.Available() {
		http.Error(w, "manual unavailable", http.StatusNotFound)
		return
	}

	rc, err := s.manual.Open(source)
	if err != nil {
		logger.Warningf("cannot open %s: %v", source.Label, err)
		http.Error(w, "manual unavailable", http.StatusNotFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+source.Name+`"`)
	w.Header().Set(SourceHeader, source.Label)

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, source.Name, time.Time{}, rs)
		return
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.Debugf("manual transfer interrupted: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manual.Status())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		var err error
		if force, err = strconv.ParseBool(raw); err != nil {
			http.Error(w, "invalid force parameter", http.StatusBadRequest)
			return
		}
	}

	result := s.manual.CheckForUpdate(r.Context(), force)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	status, err := s.device.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":         status.URL,
		"reachable":   status.Reachable,
		"status_code": status.StatusCode,
		"latency_ms":  status.Latency.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("cannot write response: %v", err)
	}
}
