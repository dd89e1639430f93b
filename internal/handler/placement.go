package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campus-placement/internal/middleware"
	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/service"
)

// PlacementAPI is the placement lifecycle as seen by the HTTP layer.
// *service.PlacementService implements it.
type PlacementAPI interface {
	Create(ctx context.Context, actor model.Actor, in service.CreatePlacementInput) (*model.Placement, error)
	Delegate(ctx context.Context, actor model.Actor, placementID, adminID uint64) (*model.Placement, error)
	PostUpdate(ctx context.Context, actor model.Actor, placementID uint64, text string, rt model.RoundType) (*model.Update, error)
	Apply(ctx context.Context, actor model.Actor, placementID uint64, resumeURL, formURL string) (*model.Registration, error)
	ApplyWithResume(ctx context.Context, actor model.Actor, placementID uint64, filename string, resume io.Reader, formURL string) (*model.Registration, error)
	SetStatus(ctx context.Context, actor model.Actor, placementID, studentID uint64, status model.RegistrationStatus) (*model.Registration, error)
	SetPlacementStatus(ctx context.Context, actor model.Actor, placementID uint64, status model.PlacementStatus) (*model.Placement, error)
	Details(ctx context.Context, actor model.Actor, placementID uint64) (*service.PlacementView, error)
	ListForStudent(ctx context.Context, actor model.Actor) ([]service.PlacementView, error)
	ListForAdmin(ctx context.Context, actor model.Actor) ([]*model.Placement, error)
	Delete(ctx context.Context, actor model.Actor, placementID uint64) error
	RegistrationsForPlacement(ctx context.Context, actor model.Actor, placementID uint64) ([]model.RegistrationWithStudent, error)
	MyRegistrations(ctx context.Context, actor model.Actor) ([]model.Registration, error)
	ExportRegistrations(ctx context.Context, actor model.Actor, placementID uint64) (*bytes.Buffer, string, error)
}

const (
	requestTimeout = 5 * time.Second
	uploadTimeout  = 30 * time.Second
)

// PlacementHandler exposes the placement endpoints under /v1.
type PlacementHandler struct {
	Svc            PlacementAPI
	Log            *zap.Logger
	MaxResumeBytes int64
}

func NewPlacementHandler(svc PlacementAPI, log *zap.Logger, maxResumeBytes int64) *PlacementHandler {
	if maxResumeBytes <= 0 {
		maxResumeBytes = 5 << 20
	}
	return &PlacementHandler{Svc: svc, Log: log, MaxResumeBytes: maxResumeBytes}
}

// ----- DTOs -----

type createPlacementReq struct {
	CompanyName         string  `json:"company_name"`
	JobTitle            string  `json:"job_title"`
	JobDescription      string  `json:"job_description"`
	EligibilityCriteria string  `json:"eligibility_criteria"`
	Deadline            string  `json:"deadline"` // RFC3339 or YYYY-MM-DD (end of that day, UTC)
	ApplicationLink     string  `json:"application_link"`
	Location            *string `json:"location"`
	Salary              *string `json:"salary"`
}

type delegateReq struct {
	AdminID uint64 `json:"admin_id"`
}

type postUpdateReq struct {
	Text      string `json:"text"`
	RoundType string `json:"round_type"`
}

type registerPlacementReq struct {
	ResumeURL string `json:"resume_url"`
	FormURL   string `json:"form_url"`
}

type setStatusReq struct {
	StudentID uint64 `json:"student_id"`
	Status    string `json:"status"`
}

type placementStatusReq struct {
	Status string `json:"status"`
}

// parseDeadline accepts RFC3339 timestamps and bare dates.  A bare date
// means the deadline is the last second of that day in UTC.
func parseDeadline(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.Add(24*time.Hour - time.Second), true
	}
	return time.Time{}, false
}

func (h *PlacementHandler) actor(c echo.Context) (model.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, service.ErrUnauthenticated
	}
	return a, nil
}

// Create handles POST /v1/placements.
func (h *PlacementHandler) Create(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req createPlacementReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	deadline, ok := parseDeadline(req.Deadline)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "deadline must be RFC3339 or YYYY-MM-DD"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Svc.Create(ctx, actor, service.CreatePlacementInput{
		CompanyName:         req.CompanyName,
		JobTitle:            req.JobTitle,
		JobDescription:      req.JobDescription,
		EligibilityCriteria: req.EligibilityCriteria,
		Deadline:            deadline,
		ApplicationLink:     req.ApplicationLink,
		Location:            req.Location,
		Salary:              req.Salary,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Delegate handles POST /v1/placements/:id/admin.
func (h *PlacementHandler) Delegate(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	var req delegateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Svc.Delegate(ctx, actor, id, req.AdminID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// PostUpdate handles POST /v1/placements/:id/updates.
func (h *PlacementHandler) PostUpdate(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	var req postUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.PostUpdate(ctx, actor, id, req.Text, model.RoundType(strings.ToLower(strings.TrimSpace(req.RoundType))))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// Register handles POST /v1/placements/:id/register.  It accepts either a
// JSON body with resume_url and form_url, or a multipart form with a
// "resume" file and a form_url field.
func (h *PlacementHandler) Register(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return h.registerWithFile(c, actor, id)
	}

	var req registerPlacementReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	reg, err := h.Svc.Apply(ctx, actor, id, req.ResumeURL, req.FormURL)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *PlacementHandler) registerWithFile(c echo.Context, actor model.Actor, id uint64) error {
	fh, err := c.FormFile("resume")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "resume file required"})
	}
	if fh.Size > h.MaxResumeBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "resume file too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot read resume file"})
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
	defer cancel()

	reg, err := h.Svc.ApplyWithResume(ctx, actor, id, fh.Filename, f, c.FormValue("form_url"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, reg)
}

// SetStatus handles POST /v1/placements/:id/status.
func (h *PlacementHandler) SetStatus(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.StudentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "student_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	status := model.RegistrationStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	reg, err := h.Svc.SetStatus(ctx, actor, id, req.StudentID, status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reg)
}

// SetPlacementStatus handles PATCH /v1/placements/:id.
func (h *PlacementHandler) SetPlacementStatus(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	var req placementStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Svc.SetPlacementStatus(ctx, actor, id, model.PlacementStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Details handles GET /v1/placements/:id.
func (h *PlacementHandler) Details(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.Svc.Details(ctx, actor, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ListForStudent handles GET /v1/placements/student.
func (h *PlacementHandler) ListForStudent(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Svc.ListForStudent(ctx, actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// ListForAdmin handles GET /v1/placements/admin.
func (h *PlacementHandler) ListForAdmin(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Svc.ListForAdmin(ctx, actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Delete handles DELETE /v1/placements/:id.
func (h *PlacementHandler) Delete(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.Delete(ctx, actor, id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Registrations handles GET /v1/placements/:id/registrations.
func (h *PlacementHandler) Registrations(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	regs, err := h.Svc.RegistrationsForPlacement(ctx, actor, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, regs)
}

// ExportRegistrations handles GET /v1/placements/:id/registrations/export.
func (h *PlacementHandler) ExportRegistrations(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "placement id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	buf, filename, err := h.Svc.ExportRegistrations(ctx, actor, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// MyRegistrations handles GET /v1/my-registrations.
func (h *PlacementHandler) MyRegistrations(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	regs, err := h.Svc.MyRegistrations(ctx, actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, regs)
}
