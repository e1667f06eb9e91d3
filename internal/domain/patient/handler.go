package patient

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/middleware"
	"github.com/healthguard/healthguard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor)

	api.POST("/patients", h.CreatePatient, staff)
	api.GET("/patients", h.ListPatients, staff)
	api.GET("/patients/me", h.GetMyRecord, auth.RequireRole(auth.RolePatient))
	api.PUT("/patients/me", h.UpsertMyRecord, auth.RequireRole(auth.RolePatient))
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient, staff)
	api.DELETE("/patients/:id", h.DeletePatient, staff)
	api.PUT("/patients/:id/doctor", h.AssignDoctor)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pat, err := h.svc.CreatePatient(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, pat.ID)
	return c.JSON(http.StatusCreated, pat)
}

func (h *Handler) ListPatients(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMyRecord(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	pat, err := h.svc.GetPatientByUserID(c.Request().Context(), p)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, pat.ID)
	return c.JSON(http.StatusOK, pat)
}

func (h *Handler) UpsertMyRecord(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	var in PatientData
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pat, created, err := h.svc.CreateOrUpdateSelfRecord(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, pat.ID)
	if created {
		return c.JSON(http.StatusCreated, pat)
	}
	return c.JSON(http.StatusOK, pat)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pat, err := h.svc.GetPatient(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pat)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pat, err := h.svc.UpdatePatient(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pat)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AssignDoctor(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in AssignDoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.DoctorID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	pat, err := h.svc.AssignDoctor(c.Request().Context(), p, id, in.DoctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pat)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
