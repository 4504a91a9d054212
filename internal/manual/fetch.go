package manual

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/k4lls/zt100/internal/errors"
)

// Validators is the conditional-fetch metadata a server reports for the manual
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Empty reports whether neither validator is usable
func (v Validators) Empty() bool {
	return v.ETag == "" && v.LastModified == ""
}

// orElse fills the validators v lacks from fallback
func (v Validators) orElse(fallback Validators) Validators {
	if v.ETag == "" {
		v.ETag = fallback.ETag
	}
	if v.LastModified == "" {
		v.LastModified = fallback.LastModified
	}
	return v
}

func validatorsFrom(h http.Header) Validators {
	return Validators{
		ETag:         strings.TrimSpace(h.Get("ETag")),
		LastModified: strings.TrimSpace(h.Get("Last-Modified")),
	}
}

// Fetcher retrieves metadata and content of the remote manual
type Fetcher interface {
	// Probe returns the validators of the remote resource without its body.
	Probe(ctx context.Context, url string) (Validators, error)
	// Fetch streams the remote resource into w.
	Fetch(ctx context.Context, url string, w io.Writer) (Validators, int64, error)
}

// StatusError is returned when the server answers outside the 2xx range
type StatusError struct {
	Method     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Method, e.StatusCode)
}

const (
	// DefaultProbeTimeout bounds the HEAD request
	DefaultProbeTimeout = 15 * time.Second
	// DefaultDownloadTimeout bounds the full GET including the body transfer
	DefaultDownloadTimeout = 120 * time.Second
)

// HTTPFetcher implements Fetcher with HEAD and GET requests
type HTTPFetcher struct {
	client          *http.Client
	probeTimeout    time.Duration
	downloadTimeout time.Duration
	userAgent       string
}

// NewHTTPFetcher creates a fetcher; zero timeouts select the defaults
func NewHTTPFetcher(probeTimeout, downloadTimeout time.Duration) *HTTPFetcher {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	return &HTTPFetcher{
		client:          &http.Client{},
		probeTimeout:    probeTimeout,
		downloadTimeout: downloadTimeout,
		userAgent:       "zt100-companion",
	}
}

// Probe issues a HEAD request for url
func (f *HTTPFetcher) Probe(ctx context.Context, url string) (Validators, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return Validators{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return validatorsFrom(resp.Header), nil
}

// Fetch issues a GET request for url and copies the body into w
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) (Validators, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.downloadTimeout)
	defer cancel()

	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return Validators{}, 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return Validators{}, n, errors.NewSyncError("failed to read manual body", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return Validators{}, n, errors.NewSyncError(
			fmt.Sprintf("short manual body: got %d of %d bytes", n, resp.ContentLength), nil)
	}

	return validatorsFrom(resp.Header), n, nil
}

func (f *HTTPFetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.NewSyncError("failed to create request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewSyncError(fmt.Sprintf("%s %s failed", method, url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.NewSyncError("unexpected response", &StatusError{Method: method, StatusCode: resp.StatusCode})
	}

	return resp, nil
}
