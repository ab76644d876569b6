package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func doWithRole(t *testing.T, role string, mw echo.MiddlewareFunc) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		p := Principal{ID: uuid.New(), Role: role, Name: "tester"}
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		he, ok := err.(*echo.HTTPError)
		if !ok {
			t.Fatalf("unexpected error type: %v", err)
		}
		return he.Code
	}
	return rec.Code
}

func TestRequireRole_AllowsMatchingRole(t *testing.T) {
	if code := doWithRole(t, RoleBiologist, RequireRole(RoleBiologist)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if code := doWithRole(t, RoleAdmin, RequireRole(RoleBiologist)); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
}

func TestRequireRole_RejectsOtherRole(t *testing.T) {
	if code := doWithRole(t, RoleProfessional, RequireRole(RoleBiologist)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireRole_RejectsMissingPrincipal(t *testing.T) {
	if code := doWithRole(t, "", RequireRole(RoleBiologist)); code != http.StatusForbidden {
		t.Fatalf("expected 403 without principal, got %d", code)
	}
}

func TestPrincipalFromContext_ZeroWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p := PrincipalFromContext(req.Context())
	if p.ID != uuid.Nil || p.Role != "" {
		t.Fatalf("expected zero principal, got %+v", p)
	}
}
