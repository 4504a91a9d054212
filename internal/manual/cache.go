package manual

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/k4lls/zt100/internal/errors"
)

const tempPattern = ".download-*.tmp"

// download is a fully written temporary copy of the remote manual
type download struct {
	path       string
	size       int64
	sha256     string
	validators Validators
}

// hashFile calculates the SHA256 hash of a file
func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// fileExists reports whether path is an existing regular file
func fileExists(path string) (os.FileInfo, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return info, true
}

// createTemp opens a new temporary file in dir, next to the final cache path,
// so the install step is a rename within one filesystem.
func createTemp(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewSyncError("failed to create cache directory", err)
	}
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, errors.NewSyncError("failed to create temporary file", err)
	}
	return f, nil
}

// hashingWriter tees everything written into a SHA256 digest
type hashingWriter struct {
	w    io.Writer
	hash hash.Hash
}

func newHashingWriter(w io.Writer) *hashingWriter {
	return &hashingWriter{w: w, hash: sha256.New()}
}

func (h *hashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.hash.Write(p[:n])
	return n, err
}

func (h *hashingWriter) sum() string {
	return hex.EncodeToString(h.hash.Sum(nil))
}

// install moves a complete temporary file over the cache path. The rename is
// the only operation that ever changes the cache path.
func install(tmpPath, cachePath string) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return errors.NewSyncError("failed to create cache directory", err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return errors.NewSyncError("failed to move manual into place", err)
	}
	return nil
}

// removeStaleDownloads deletes temporary files abandoned by an interrupted
// process. Files younger than maxAge may belong to another running check.
func removeStaleDownloads(dir string, now time.Time, maxAge time.Duration) int {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return 0
	}

	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warningf("cannot remove stale download %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}
