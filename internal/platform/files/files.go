// Package files stores uploaded knowledge files on local disk and extracts
// their text for indexing.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned for formats text cannot be extracted from.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrOutsideRoot is returned for paths that escape the upload directory.
	ErrOutsideRoot = errors.New("path outside upload directory")
)

// Saved describes a stored upload.
type Saved struct {
	Path     string
	Size     int64
	MimeType string
}

// Storage keeps uploads under a root directory, one subdirectory per customer.
type Storage struct {
	root   string
	logger *slog.Logger
}

// NewStorage creates root if needed.
func NewStorage(root string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Storage{root: abs, logger: logger.With("component", "files")}, nil
}

// Save writes r to a new file for customerID. At most maxBytes are accepted;
// a larger upload is removed and ErrTooLarge returned.
func (s *Storage) Save(ctx context.Context, customerID uuid.UUID, filename string, r io.Reader, maxBytes int64) (*Saved, error) {
	dir := filepath.Join(s.root, customerID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create customer directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+"-"+sanitize(filename))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	s.logger.InfoContext(ctx, "upload stored",
		"customer_id", customerID.String(),
		"filename", filename,
		"size", n,
		"mime_type", mt.String())
	return &Saved{Path: path, Size: n, MimeType: mt.String()}, nil
}

// Open returns a reader for a stored file. Paths outside the root are refused.
func (s *Storage) Open(path string) (*os.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return os.Open(abs)
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Storage) Remove(path string) error {
	f, err := s.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	_ = f.Close()
	return os.Remove(path)
}

// sanitize keeps the base name and replaces characters unsafe in file names.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
