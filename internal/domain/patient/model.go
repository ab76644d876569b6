package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labportal/portal/internal/platform/auth"
)

// Patient is the slice of the patient record this service consumes. The
// fiscal code is both PII and, on the public channel, the secret that
// authenticates a download — it must never appear in cleartext in logs
// outside the access audit trail.
type Patient struct {
	ID         uuid.UUID `db:"id" json:"id"`
	GivenName  string    `db:"given_name" json:"given_name"`
	FamilyName string    `db:"family_name" json:"family_name"`
	FiscalCode string    `db:"fiscal_code" json:"fiscal_code"`
	BirthDate  time.Time `db:"birth_date" json:"birth_date"`
	Sex        string    `db:"sex" json:"sex"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeFiscalCode canonicalizes a fiscal code for storage and lookup.
func NormalizeFiscalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redact returns the role-appropriate view of a patient. Admins and the
// referring professional see the record unchanged. Biologists work on
// pseudonymized specimens: names keep their first rune with the remainder
// masked (length-preserving), and the fiscal code keeps only its first and
// last three characters. Applying Redact twice yields the same result.
func Redact(p Patient, role string) Patient {
	switch role {
	case auth.RoleAdmin, auth.RoleProfessional:
		return p
	}

	p.GivenName = maskName(p.GivenName)
	p.FamilyName = maskName(p.FamilyName)
	p.FiscalCode = maskFiscalCode(p.FiscalCode)
	return p
}

func maskName(name string) string {
	runes := []rune(name)
	if len(runes) <= 1 {
		return name
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

func maskFiscalCode(code string) string {
	runes := []rune(code)
	if len(runes) <= 6 {
		return code
	}
	return string(runes[:3]) + strings.Repeat("*", len(runes)-6) + string(runes[len(runes)-3:])
}
