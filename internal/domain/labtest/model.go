package labtest

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("test not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrValidation   = errors.New("validation failed")
)

// Status is the lifecycle state of a laboratory test. Transitions only move
// forward except for reported -> executed, which happens when a report is
// deleted and the test has to be reported again.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusInProgress Status = "in_progress"
	StatusExecuted   Status = "executed"
	StatusReported   Status = "reported"
	StatusSigned     Status = "signed"
)

var transitions = map[Status][]Status{
	StatusRequested:  {StatusInProgress, StatusExecuted},
	StatusInProgress: {StatusExecuted},
	StatusExecuted:   {StatusReported},
	StatusReported:   {StatusSigned, StatusExecuted},
	StatusSigned:     {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

var validCategories = map[string]bool{
	"genetic":    true,
	"microbiota": true,
	"cytotoxic":  true,
	"elisa":      true,
}

func ValidCategory(c string) bool { return validCategories[c] }

var codePattern = regexp.MustCompile(`^LAB-\d{4}-\d{6}$`)

// ValidCode reports whether a test code has the LAB-YYYY-XXXXXX shape.
func ValidCode(code string) bool { return codePattern.MatchString(code) }

type Test struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Code          string     `db:"code" json:"code"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	Category      string     `db:"category" json:"category"`
	Status        Status     `db:"status" json:"status"`
	RequestedBy   uuid.UUID  `db:"requested_by" json:"requested_by"`
	AssignedTo    *uuid.UUID `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedName  *string    `db:"assigned_name" json:"assigned_name,omitempty"`
	ResultSummary *string    `db:"result_summary" json:"result_summary,omitempty"`
	RequestedAt   time.Time  `db:"requested_at" json:"requested_at"`
	TakenAt       *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	ExecutedAt    *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	ReportedAt    *time.Time `db:"reported_at" json:"reported_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *Test) Validate() error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if !ValidCode(t.Code) {
		return fmt.Errorf("%w: invalid test code %q", ErrValidation, t.Code)
	}
	if !ValidCategory(t.Category) {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, t.Category)
	}
	return nil
}
