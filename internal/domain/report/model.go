package report

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("report not found")
	ErrInvalidState = errors.New("invalid report state")
	ErrStorage      = errors.New("artifact storage failed")
	ErrValidation   = errors.New("validation failed")
)

// Source records how a report artifact entered custody.
const (
	SourceGenerated = "generated"
	SourceExternal  = "external"
)

// Report is the custody record of a test's report artifact. The unsigned
// artifact lives at FilePath with its SHA-256 digest in Digest; a signed
// copy, when attached, lives at SignedPath. Paths are relative to the
// artifact store root. One report per test.
type Report struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TestID     uuid.UUID  `db:"test_id" json:"test_id"`
	Source     string     `db:"source" json:"source"`
	FilePath   string     `db:"file_path" json:"file_path"`
	Digest     string     `db:"digest" json:"digest"`
	SignedPath *string    `db:"signed_path" json:"signed_path,omitempty"`
	SignedAt   *time.Time `db:"signed_at" json:"signed_at,omitempty"`
	CreatedBy  uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Signed reports whether a signed copy is attached.
func (r *Report) Signed() bool {
	return r.SignedPath != nil && r.SignedAt != nil
}
