// Package artifact stores report documents on the local filesystem. Report
// rows record paths relative to the store root, so the database stays
// portable across hosts. Writes are atomic (temp file + rename) so a path
// never points at partially written bytes.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrBadExtension = errors.New("file extension is not allowed")
	ErrBadDocument  = errors.New("file is not a well-formed document")
	ErrBadPath      = errors.New("artifact path escapes the store root")
)

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// DocumentExtensions lists extensions accepted for unsigned report uploads.
var DocumentExtensions = map[string]bool{
	".pdf": true,
	".p7m": true,
}

// SignedExtensions lists extensions accepted for signed report uploads:
// either a signed document or a detached-signature container.
var SignedExtensions = map[string]bool{
	".pdf": true,
	".p7m": true,
}

// pdfMagic is the header every PDF starts with.
var pdfMagic = []byte("%PDF-")

// CheckExtension validates the filename extension against an allow-list and
// returns the lowercase extension.
func CheckExtension(filename string, allowed map[string]bool) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return "", fmt.Errorf("%w: %q", ErrBadExtension, ext)
	}
	return ext, nil
}

// SniffDocument checks that the content looks like a supported document
// format: a PDF header, or a DER/PEM PKCS#7 envelope for .p7m containers.
func SniffDocument(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrBadDocument)
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return nil
	}
	// DER SEQUENCE (0x30) or PEM armor cover signed containers.
	if data[0] == 0x30 || bytes.HasPrefix(data, []byte("-----BEGIN")) {
		return nil
	}
	return ErrBadDocument
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store is a filesystem-backed artifact store rooted at a single directory.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(root string, maxBytes int64) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact store: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("artifact store: create root %s: %w", root, err)
	}
	return &Store{root: root, maxBytes: maxBytes}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// abs resolves a stored relative path, rejecting anything that would escape
// the root.
func (s *Store) abs(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q", ErrBadPath, relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Write stores data at the given relative path, creating parent directories.
// The write is atomic: data lands in a temp file first and is renamed into
// place, so readers never observe partial content.
func (s *Store) Write(relPath string, data []byte) error {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	dst, err := s.abs(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("artifact store: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("artifact store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("artifact store: write %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact store: close %s: %w", relPath, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact store: rename into place: %w", err)
	}
	return nil
}

// Read returns the bytes stored at the given relative path.
func (s *Store) Read(relPath string) ([]byte, error) {
	src, err := s.abs(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact store: read %s: %w", relPath, err)
	}
	return data, nil
}

// Abs returns the absolute filesystem path for a stored relative path. Used
// by integrity checks that hash the file at rest.
func (s *Store) Abs(relPath string) (string, error) {
	return s.abs(relPath)
}

// Exists reports whether an artifact is present at the relative path.
func (s *Store) Exists(relPath string) bool {
	src, err := s.abs(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(src)
	return err == nil
}

// Remove deletes the artifact at the relative path. Missing files return
// ErrNotFound so callers can decide whether that matters.
func (s *Store) Remove(relPath string) error {
	src, err := s.abs(relPath)
	if err != nil {
		return err
	}
	err = os.Remove(src)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	if err != nil {
		return fmt.Errorf("artifact store: remove %s: %w", relPath, err)
	}
	return nil
}
