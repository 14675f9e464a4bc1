// Package artifact stores rendered report documents and their sources.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/digital-iq/llm-report/internal/config"
)

// RefPrefix is the URL path under which artifacts are served.
const RefPrefix = "/files/"

var (
	// ErrNotFound is returned when no artifact has the requested name.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for names that are empty or contain a path.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Info describes a stored artifact.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store abstracts where artifacts live. Names are flat: no directories.
type Store interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	// Check reports whether the store is usable.
	Check(ctx context.Context) error
}

// ValidName rejects names that could address anything outside the store.
func ValidName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Ref returns the public reference of an artifact name.
func Ref(name string) string {
	return RefPrefix + name
}

// NameFromRef returns the artifact name of a reference produced by Ref.
func NameFromRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, RefPrefix)
	return name, ValidName(name) == nil
}

// ContentType guesses the MIME type from the name's extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".adoc", ".asciidoc":
		return "text/asciidoc; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// New builds the store selected by cfg. Local stores live under reportsPath.
func New(ctx context.Context, cfg config.ArtifactsConfig, reportsPath string) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(reportsPath)
	case "minio":
		s, err := NewMinIOStore(MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
}
