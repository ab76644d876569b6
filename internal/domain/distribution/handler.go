package distribution

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/labportal/portal/internal/platform/auth"
	"github.com/labportal/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the credential-gated endpoints on the public group
// and the audit view on the authenticated API group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/reports/download", h.Download)
	public.POST("/reports/verify", h.Verify)

	api.GET("/access-log", h.ListAccess, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Download(c echo.Context) error {
	req := DownloadRequest{
		TestCode:   c.FormValue("test_code"),
		FiscalCode: c.FormValue("fiscal_code"),
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	}
	res, err := h.svc.Download(c.Request().Context(), req)
	if err != nil {
		return publicError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+res.Filename+`"`)
	return c.Blob(http.StatusOK, "application/octet-stream", res.Bytes)
}

func (h *Handler) Verify(c echo.Context) error {
	req := VerifyRequest{
		TestCode:  c.FormValue("test_code"),
		Digest:    c.FormValue("digest"),
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	summary, err := h.svc.Verify(c.Request().Context(), req)
	if err != nil {
		return publicError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListAccess(c echo.Context) error {
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.ListAccess(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func publicError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrNotAvailable):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotAvailable.Error())
	case errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusGone, ErrExpired.Error())
	case errors.Is(err, ErrVerifyNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrVerifyNotFound.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
