package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/labportal/portal/internal/domain/labtest"
)

func downloadFile(t *testing.T, f *fixture, reportID string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(f.svc, f.tests, f.patients)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(reportID)
	if err := h.DownloadFile(c); err != nil {
		t.Fatalf("download file: %v", err)
	}
	return rec
}

func TestDownloadFileKeepsStoredExtension(t *testing.T) {
	f := newFixture(t)
	tt := f.seed(t, labtest.StatusExecuted, "elisa")
	rep, err := f.svc.UploadExternal(context.Background(), clinician, tt.ID, "referto.p7m", []byte("\x30\x82firmato"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	rec := downloadFile(t, f, rep.ID.String())
	cd := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.Contains(cd, rep.ID.String()+".p7m") {
		t.Errorf("attachment name does not match stored artifact: %q", cd)
	}
	if rec.Header().Get("X-Artifact-Sealed") != "" {
		t.Error("unsealed artifact flagged as sealed")
	}
}

func TestDownloadFileFlagsSealedArtifact(t *testing.T) {
	f := newFixture(t)
	tt := f.seed(t, labtest.StatusExecuted, "genetic")
	rep, err := f.svc.UploadExternal(context.Background(), clinician, tt.ID, "referto.pdf", []byte(pdfSample))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	rec := downloadFile(t, f, rep.ID.String())
	if rec.Header().Get("X-Artifact-Sealed") != "true" {
		t.Error("sealed genetic artifact served without the sealed flag")
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), rep.ID.String()+".pdf") {
		t.Errorf("attachment name = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
}
