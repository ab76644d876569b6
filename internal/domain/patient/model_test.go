package patient

import (
	"testing"

	"github.com/labportal/portal/internal/platform/auth"
)

func samplePatient() Patient {
	return Patient{
		GivenName:  "Maria",
		FamilyName: "Rossi",
		FiscalCode: "RSSMRA85T10A562S",
		Sex:        "F",
	}
}

func TestRedactBiologist(t *testing.T) {
	got := Redact(samplePatient(), auth.RoleBiologist)

	if got.GivenName != "M****" {
		t.Errorf("given name = %q, want M****", got.GivenName)
	}
	if got.FamilyName != "R****" {
		t.Errorf("family name = %q, want R****", got.FamilyName)
	}
	if got.FiscalCode != "RSS**********62S" {
		t.Errorf("fiscal code = %q, want RSS**********62S", got.FiscalCode)
	}
	if len(got.GivenName) != len("Maria") {
		t.Errorf("mask is not length-preserving: %q", got.GivenName)
	}
	if len(got.FiscalCode) != len("RSSMRA85T10A562S") {
		t.Errorf("fiscal code mask is not length-preserving: %q", got.FiscalCode)
	}
}

func TestRedactIdempotent(t *testing.T) {
	once := Redact(samplePatient(), auth.RoleBiologist)
	twice := Redact(once, auth.RoleBiologist)
	if once != twice {
		t.Errorf("redacting twice changed the view: %+v vs %+v", once, twice)
	}
}

func TestRedactPassthroughRoles(t *testing.T) {
	p := samplePatient()
	for _, role := range []string{auth.RoleAdmin, auth.RoleProfessional} {
		if got := Redact(p, role); got != p {
			t.Errorf("role %s: record was modified: %+v", role, got)
		}
	}
}

func TestRedactShortValues(t *testing.T) {
	p := Patient{GivenName: "A", FamilyName: "", FiscalCode: "ABC123"}
	got := Redact(p, auth.RoleBiologist)
	if got.GivenName != "A" || got.FamilyName != "" {
		t.Errorf("short names should be left alone: %+v", got)
	}
	if got.FiscalCode != "ABC123" {
		t.Errorf("six-char code should be left alone: %q", got.FiscalCode)
	}
}

func TestNormalizeFiscalCode(t *testing.T) {
	if got := NormalizeFiscalCode("  rssmra85t10a562s "); got != "RSSMRA85T10A562S" {
		t.Errorf("normalize = %q", got)
	}
}
