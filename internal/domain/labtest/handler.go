package labtest

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/platform/auth"
	"github.com/labportal/portal/pkg/pagination"
)

type Handler struct {
	svc      *Service
	patients patient.Repository
}

func NewHandler(svc *Service, patients patient.Repository) *Handler {
	return &Handler{svc: svc, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBiologist, auth.RoleProfessional))
	readGroup.GET("/tests", h.List)
	readGroup.GET("/tests/:id", h.Get)

	api.POST("/tests", h.Create, auth.RequireRole(auth.RoleAdmin, auth.RoleProfessional))

	benchGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBiologist))
	benchGroup.POST("/tests/:id/take", h.TakeInCharge)
	benchGroup.POST("/tests/:id/executed", h.MarkExecuted)
	benchGroup.PUT("/tests/:id/result", h.RecordResult)
}

type createRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Category  string    `json:"category"`
}

type resultRequest struct {
	ResultSummary string `json:"result_summary"`
}

// testView is a test together with the role-appropriate view of its patient.
type testView struct {
	*Test
	Patient *patient.Patient `json:"patient,omitempty"`
}

func (h *Handler) view(c echo.Context, t *Test) testView {
	v := testView{Test: t}
	p, err := h.patients.GetByID(c.Request().Context(), t.PatientID)
	if err == nil {
		redacted := patient.Redact(*p, auth.PrincipalFromContext(c.Request().Context()).Role)
		v.Patient = &redacted
	}
	return v
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.patients.GetByID(c.Request().Context(), req.PatientID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown patient")
	}
	t := &Test{
		PatientID:   req.PatientID,
		Category:    req.Category,
		RequestedBy: auth.PrincipalFromContext(c.Request().Context()).ID,
		RequestedAt: time.Now(),
	}
	if err := h.svc.Create(c.Request().Context(), t); err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "test not found")
	}
	return c.JSON(http.StatusOK, h.view(c, t))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Status:   Status(c.QueryParam("status")),
		Category: c.QueryParam("category"),
	}
	if pid := c.QueryParam("patient_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = id
	}
	// Clinical staff see everything; professionals only ever see the
	// tests they requested.
	if p := auth.PrincipalFromContext(c.Request().Context()); !p.IsClinical() {
		f.RequestedBy = p.ID
	}
	tests, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tests, total, pg.Limit, pg.Offset))
}

func (h *Handler) TakeInCharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.TakeInCharge(c.Request().Context(), id, auth.PrincipalFromContext(c.Request().Context()))
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) MarkExecuted(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.MarkExecuted(c.Request().Context(), id, req.ResultSummary)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) RecordResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.RecordResult(c.Request().Context(), id, auth.PrincipalFromContext(c.Request().Context()), req.ResultSummary)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "test not found")
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
