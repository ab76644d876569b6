package report

import (
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/platform/auth"
	"github.com/labportal/portal/pkg/pagination"
)

type Handler struct {
	svc      *Service
	tests    labtest.Repository
	patients patient.Repository
}

func NewHandler(svc *Service, tests labtest.Repository, patients patient.Repository) *Handler {
	return &Handler{svc: svc, tests: tests, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBiologist, auth.RoleProfessional))
	readGroup.GET("/reports", h.List)
	readGroup.GET("/reports/:id", h.Get)
	readGroup.GET("/reports/:id/file", h.DownloadFile)
	readGroup.GET("/reports/:id/verify", h.VerifyIntegrity)

	benchGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBiologist))
	benchGroup.POST("/tests/:id/report", h.Generate)
	benchGroup.POST("/tests/:id/report/upload", h.UploadExternal)
	benchGroup.POST("/reports/:id/signed", h.AttachSignedCopy)
	benchGroup.DELETE("/reports/:id", h.Delete)
}

// reportView embeds the owning test and the role-appropriate patient view.
type reportView struct {
	*Report
	Test    *labtest.Test    `json:"test,omitempty"`
	Patient *patient.Patient `json:"patient,omitempty"`
}

func (h *Handler) view(c echo.Context, rep *Report) reportView {
	v := reportView{Report: rep}
	t, err := h.tests.GetByID(c.Request().Context(), rep.TestID)
	if err != nil {
		return v
	}
	v.Test = t
	if p, err := h.patients.GetByID(c.Request().Context(), t.PatientID); err == nil {
		redacted := patient.Redact(*p, auth.PrincipalFromContext(c.Request().Context()).Role)
		v.Patient = &redacted
	}
	return v
}

func (h *Handler) Generate(c echo.Context) error {
	testID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.Generate(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), testID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) UploadExternal(c echo.Context) error {
	testID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.UploadExternal(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), testID, filename, data)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) AttachSignedCopy(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.AttachSignedCopy(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), reportID, filename, data)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Delete(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), reportID); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Get(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.Get(c.Request().Context(), reportID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, h.view(c, rep))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	reports, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]reportView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, h.view(c, rep))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) DownloadFile(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.Get(c.Request().Context(), reportID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	abs, err := h.svc.store.Abs(rep.FilePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "artifact unavailable")
	}
	// Sealed categories rest inside a fiscal-code-keyed envelope; warn the
	// viewer that the bytes are not the document itself.
	if rep.Source == SourceExternal {
		if t, err := h.tests.GetByID(c.Request().Context(), rep.TestID); err == nil && sealedCategories[t.Category] {
			c.Response().Header().Set("X-Artifact-Sealed", "true")
		}
	}
	return c.Attachment(abs, path.Base(rep.FilePath))
}

func (h *Handler) VerifyIntegrity(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	intact, err := h.svc.VerifyIntegrity(c.Request().Context(), reportID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"intact": intact})
}

func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	return fh.Filename, data, nil
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
