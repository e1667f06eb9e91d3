package diagnosis

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/middleware"
	"github.com/healthguard/healthguard/pkg/pagination"
)

// MaxImageBytes caps an uploaded image. BODY_LIMIT must leave room above it
// for multipart framing.
const MaxImageBytes = 10 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/diagnosis", h.CreateDiagnosis)
	api.GET("/diagnosis/:id", h.GetDiagnosis)
	api.PUT("/diagnosis/:id/review", h.ReviewDiagnosis, auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/:id/diagnoses", h.ListPatientDiagnoses)
}

// CreateDiagnosis accepts JSON for feature mode, or multipart/form-data with
// an "image" file and a "patient_id" field for image mode.
func (h *Handler) CreateDiagnosis(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}

	var in CreateInput
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		in, err = bindImageForm(c)
		if err != nil {
			return err
		}
	} else if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := h.svc.CreateDiagnosis(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, d.PatientID)
	return c.JSON(http.StatusCreated, d)
}

func bindImageForm(c echo.Context) (CreateInput, error) {
	var in CreateInput
	patientID, err := strconv.ParseInt(c.FormValue("patient_id"), 10, 64)
	if err != nil || patientID <= 0 {
		return in, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, "unreadable image upload")
	}
	defer f.Close()

	image, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, "unreadable image upload")
	}
	if len(image) > MaxImageBytes {
		return in, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image exceeds 10MB")
	}

	in.PatientID = patientID
	in.Image = image
	in.DoctorEmail = c.FormValue("doctor_email")
	return in, nil
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDiagnosis(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, d.PatientID)
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ReviewDiagnosis(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in ReviewInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.ReviewDiagnosis(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	c.Set(middleware.AuditPatientKey, d.PatientID)
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListPatientDiagnoses(c echo.Context) error {
	p, err := auth.RequirePrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientDiagnoses(c.Request().Context(), p, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Diagnosis{}
	}
	c.Set(middleware.AuditPatientKey, patientID)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
