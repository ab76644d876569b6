package distribution

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/domain/report"
)

var (
	// ErrInvalidCredentials is deliberately the only error an outsider sees
	// for a wrong test code, a wrong fiscal code, or a locked counter. The
	// public channel must not reveal which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAvailable       = errors.New("report not yet available")
	ErrExpired            = errors.New("report no longer available")
	ErrVerifyNotFound     = errors.New("no matching report")
)

// Access outcomes recorded in the audit trail.
const (
	OutcomeDelivered          = "delivered"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeNotAvailable       = "not_available"
	OutcomeExpired            = "expired"
	OutcomeLocked             = "locked"
	OutcomeVerified           = "verified"
	OutcomeVerifyNotFound     = "verify_not_found"
)

// AccessLog is one row of the append-only public access trail. FiscalCode
// holds the cleartext code only for delivered rows; every other outcome
// stores a short hash hint instead, so failed guesses never land PII in
// the table.
type AccessLog struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TestCode   string    `db:"test_code" json:"test_code"`
	FiscalCode *string   `db:"fiscal_code" json:"fiscal_code,omitempty"`
	FiscalHint *string   `db:"fiscal_hint" json:"fiscal_hint,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome"`
	IP         string    `db:"ip" json:"ip"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Delivery is the joined view the gateway works on: the test, its patient
// and, when one exists, the report in custody.
type Delivery struct {
	Test    labtest.Test
	Patient patient.Patient
	Report  *report.Report
}

// VerifySummary is what the authenticity endpoint discloses. No patient
// identity, only test metadata and the authoring biologist.
type VerifySummary struct {
	TestCode      string     `json:"test_code"`
	Category      string     `json:"category"`
	RequestedAt   time.Time  `json:"requested_at"`
	ReportedAt    *time.Time `json:"reported_at,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	BiologistName string     `json:"biologist_name,omitempty"`
}
