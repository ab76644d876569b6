package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labportal/portal/internal/platform/auth"
	"github.com/labportal/portal/pkg/pagination"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBiologist, auth.RoleProfessional))
	readGroup.GET("/patients", h.List)
	readGroup.GET("/patients/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleProfessional))
	writeGroup.POST("/patients", h.Create)
	writeGroup.PUT("/patients/:id", h.Update)
}

type patientRequest struct {
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
	FiscalCode string    `json:"fiscal_code"`
	BirthDate  time.Time `json:"birth_date"`
	Sex        string    `json:"sex"`
}

func (r *patientRequest) validate() error {
	if r.GivenName == "" || r.FamilyName == "" {
		return errors.New("given_name and family_name are required")
	}
	if len(NormalizeFiscalCode(r.FiscalCode)) != 16 {
		return errors.New("fiscal_code must be 16 characters")
	}
	return nil
}

func (h *Handler) Create(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Patient{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		FiscalCode: req.FiscalCode,
		BirthDate:  req.BirthDate,
		Sex:        req.Sex,
	}
	if err := h.repo.Create(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	view := Redact(*p, auth.PrincipalFromContext(c.Request().Context()).Role)
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) List(c echo.Context) error {
	role := auth.PrincipalFromContext(c.Request().Context()).Role

	// Intake looks patients up by fiscal code before registering a test.
	if fc := c.QueryParam("fiscal_code"); fc != "" {
		p, err := h.repo.GetByFiscalCode(c.Request().Context(), fc)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		view := Redact(*p, role)
		return c.JSON(http.StatusOK, pagination.NewResponse([]Patient{view}, 1, 1, 0))
	}

	pg := pagination.FromContext(c)
	patients, total, err := h.repo.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]Patient, 0, len(patients))
	for _, p := range patients {
		views = append(views, Redact(*p, role))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Patient{
		ID:         id,
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		FiscalCode: req.FiscalCode,
		BirthDate:  req.BirthDate,
		Sex:        req.Sex,
	}
	if err := h.repo.Update(c.Request().Context(), p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
