package artifact

import (
	"bytes"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestWriteReadRemove(t *testing.T) {
	s := newTestStore(t)
	data := []byte("%PDF-1.4 test")

	if err := s.Write("LAB-2026-000001/report.pdf", data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("LAB-2026-000001/report.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read bytes differ from written bytes")
	}
	if !s.Exists("LAB-2026-000001/report.pdf") {
		t.Fatal("Exists should report true")
	}

	if err := s.Remove("LAB-2026-000001/report.pdf"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Read("LAB-2026-000001/report.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove("LAB-2026-000001/report.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double remove, got %v", err)
	}
}

func TestWrite_RejectsOversize(t *testing.T) {
	s := newTestStore(t)
	big := make([]byte, 2048)
	if err := s.Write("x.pdf", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestWrite_RejectsEscapingPaths(t *testing.T) {
	s := newTestStore(t)
	for _, p := range []string{"../evil.pdf", "/etc/passwd", "a/../../evil"} {
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrBadPath) {
			t.Errorf("path %q: expected ErrBadPath, got %v", p, err)
		}
	}
}

func TestCheckExtension(t *testing.T) {
	if _, err := CheckExtension("referto.PDF", DocumentExtensions); err != nil {
		t.Fatalf("pdf should be allowed: %v", err)
	}
	if _, err := CheckExtension("referto.pdf.p7m", SignedExtensions); err != nil {
		t.Fatalf("p7m should be allowed for signed uploads: %v", err)
	}
	if _, err := CheckExtension("malware.exe", DocumentExtensions); !errors.Is(err, ErrBadExtension) {
		t.Fatalf("expected ErrBadExtension, got %v", err)
	}
}

func TestSniffDocument(t *testing.T) {
	if err := SniffDocument([]byte("%PDF-1.7\n...")); err != nil {
		t.Fatalf("pdf header should pass: %v", err)
	}
	if err := SniffDocument([]byte{0x30, 0x82, 0x01, 0x00}); err != nil {
		t.Fatalf("DER envelope should pass: %v", err)
	}
	if err := SniffDocument([]byte("hello world")); !errors.Is(err, ErrBadDocument) {
		t.Fatalf("expected ErrBadDocument, got %v", err)
	}
	if err := SniffDocument(nil); !errors.Is(err, ErrBadDocument) {
		t.Fatalf("expected ErrBadDocument for empty input, got %v", err)
	}
}
