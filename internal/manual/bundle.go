package manual

import (
	"embed"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// BundledFileName is the name of the manual shipped inside the binary
const BundledFileName = "ZT-100-Manual.pdf"

//go:embed bundled/ZT-100-Manual.pdf
var bundledManual embed.FS

// Bundle is the read-only fallback copy of the manual. It is never written.
type Bundle struct {
	fsys fs.FS
	name string
	path string
}

// NewBundle wraps the file name inside fsys
func NewBundle(fsys fs.FS, name string) *Bundle {
	return &Bundle{fsys: fsys, name: name}
}

// EmbeddedBundle returns the manual compiled into the binary
func EmbeddedBundle() *Bundle {
	sub, err := fs.Sub(bundledManual, "bundled")
	if err != nil {
		panic(err)
	}
	return NewBundle(sub, BundledFileName)
}

// DiskBundle returns a bundle backed by a read-only file on disk
func DiskBundle(path string) *Bundle {
	return &Bundle{
		fsys: os.DirFS(filepath.Dir(path)),
		name: filepath.Base(path),
		path: path,
	}
}

// Name is the file name of the bundled manual
func (b *Bundle) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Path is the on-disk location, empty when the bundle is embedded
func (b *Bundle) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

// Present reports whether the bundled file exists and is a regular file
func (b *Bundle) Present() bool {
	if b == nil || b.fsys == nil {
		return false
	}
	info, err := fs.Stat(b.fsys, b.name)
	return err == nil && info.Mode().IsRegular()
}

// Open opens the bundled manual for reading
func (b *Bundle) Open() (io.ReadCloser, error) {
	if b == nil || b.fsys == nil {
		return nil, fs.ErrNotExist
	}
	return b.fsys.Open(b.name)
}
