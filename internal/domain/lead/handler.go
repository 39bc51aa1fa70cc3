package lead

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/neuroreach/intake/internal/domain/intake"
	"github.com/neuroreach/intake/internal/domain/scoring"
	"github.com/neuroreach/intake/internal/platform/auth"
	"github.com/neuroreach/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the submission endpoints on public and the
// coordinator dashboard endpoints on api, which must already authenticate.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.POST("/intake/widget", h.submit(intake.SourceWidget))
	public.POST("/intake/jotform", h.submit(intake.SourceJotForm))
	public.POST("/intake/google-ads", h.submit(intake.SourceGoogleAds))
	public.POST("/intake/:source", h.SubmitBySource)

	coord := api.Group("", auth.RequireRole(auth.RoleCoordinator))
	coord.GET("/leads", h.ListLeads)
	coord.GET("/leads/:id", h.GetLead)
	coord.PATCH("/leads/:id/status", h.UpdateStatus)
	coord.GET("/analytics/leads", h.GetAnalytics)
	coord.POST("/intake/preview", h.Preview)
}

// -- Submission Handlers --

func (h *Handler) submit(source intake.SourceType) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.ingest(c, source)
	}
}

func (h *Handler) SubmitBySource(c echo.Context) error {
	source, ok := intake.ParseSource(c.Param("source"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown intake source")
	}
	return h.ingest(c, source)
}

func (h *Handler) ingest(c echo.Context, source intake.SourceType) error {
	payload, err := readPayload(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Ingest(c.Request().Context(), source, payload)
	if err != nil {
		return submissionError(err)
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, res.Confirmation)
}

// readPayload accepts JSON objects and, for form services that post
// urlencoded webhooks, form fields.
func readPayload(c echo.Context) (map[string]any, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		form, err := c.FormParams()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
		}
		payload := make(map[string]any, len(form))
		for k, vs := range form {
			if len(vs) == 1 {
				payload[k] = vs[0]
				continue
			}
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			payload[k] = list
		}
		return payload, nil
	}

	var payload map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	return payload, nil
}

func submissionError(err error) error {
	var mErr *intake.MappingError
	if errors.As(err, &mErr) {
		body := map[string]string{"message": "submission could not be processed", "reason": mErr.Reason}
		if mErr.Field != "" {
			body["field"] = mErr.Field
		}
		var vErr *intake.ValidationError
		if errors.As(err, &vErr) {
			body["field"], body["reason"] = vErr.Field, vErr.Reason
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, body)
	}
	var cErr *ContactError
	if errors.As(err, &cErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"message": "contact details are incomplete",
			"fields":  cErr.Fields,
		})
	}
	return err
}

// -- Coordinator Handlers --

func (h *Handler) ListLeads(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("tier"); v != "" {
		tier, ok := scoring.ParseTier(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tier")
		}
		f.Tier = tier
	}
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(strings.ToLower(v))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = st
	}
	if v := c.QueryParam("source"); v != "" {
		src, ok := intake.ParseSource(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid source")
		}
		f.Source = src
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLeads(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Lead{}
	}
	query := c.QueryParams()
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithNext(c.Request().URL.Path, query))
}

func (h *Handler) GetLead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.svc.GetLead(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "lead not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, ok := ParseStatus(strings.ToLower(req.Status))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	l, err := h.svc.UpdateStatus(c.Request().Context(), id, to)
	var tErr *TransitionError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, l)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "lead not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &tErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}

// GetAnalytics accepts ?since= as RFC 3339 or a date, or ?days=. The
// default window is the last 30 days.
func (h *Handler) GetAnalytics(c echo.Context) error {
	since := time.Now().UTC().AddDate(0, 0, -30)
	if v := c.QueryParam("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 || days > 366 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 366")
		}
		since = time.Now().UTC().AddDate(0, 0, -days)
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			t, err = time.Parse("2006-01-02", v)
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since")
		}
		since = t
	}
	a, err := h.svc.Analytics(c.Request().Context(), since)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

type previewRequest struct {
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

// Preview shows coordinators how a payload maps and scores.
func (h *Handler) Preview(c echo.Context) error {
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	source, ok := intake.ParseSource(req.Source)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown intake source")
	}
	p, err := h.svc.Preview(source, req.Payload)
	if err != nil {
		return submissionError(err)
	}
	return c.JSON(http.StatusOK, p)
}
