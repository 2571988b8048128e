package escalation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/domain/intake"
	"github.com/intake/intake/internal/domain/report"
)

// TranscriptSource provides the conversation and state snapshot for the
// clinician case view.
type TranscriptSource interface {
	Transcript(ctx context.Context, threadID string) ([]intake.StoredMessage, error)
	SnapshotJSON(ctx context.Context, threadID string) (json.RawMessage, error)
}

type Handler struct {
	svc         *Service
	transcripts TranscriptSource
	reports     report.Repository
}

func NewHandler(svc *Service, transcripts TranscriptSource, reports report.Repository) *Handler {
	return &Handler{svc: svc, transcripts: transcripts, reports: reports}
}

// RegisterRoutes mounts the clinician endpoints. The group is expected to
// carry the clinician token middleware.
func (h *Handler) RegisterRoutes(clin *echo.Group) {
	clin.GET("/pending", h.Pending)
	clin.POST("/resolve", h.Resolve)
	clin.GET("/case/:thread_id", h.Case)
}

func (h *Handler) Pending(c echo.Context) error {
	items, err := h.svc.Pending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, items)
}

type resolveRequest struct {
	ThreadID  string `json:"thread_id" form:"thread_id"`
	EscID     string `json:"esc_id" form:"esc_id"`
	NurseNote string `json:"nurse_note" form:"nurse_note"`
}

func (h *Handler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ThreadID == "" || req.EscID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id and esc_id are required")
	}
	if req.NurseNote == "" {
		req.NurseNote = "Resolved"
	}

	if err := h.svc.Resolve(c.Request().Context(), req.ThreadID, req.EscID, req.NurseNote); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Case aggregates everything a reviewing clinician needs for one thread:
// transcript, latest report, escalation history and the state snapshot.
func (h *Handler) Case(c echo.Context) error {
	ctx := c.Request().Context()
	threadID := c.Param("thread_id")

	msgs, err := h.transcripts.Transcript(ctx, threadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	latest, err := h.reports.LatestByThread(ctx, threadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	escs, err := h.svc.ByThread(ctx, threadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	state, err := h.transcripts.SnapshotJSON(ctx, threadID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"thread_id":     threadID,
		"messages":      msgs,
		"latest_report": latest,
		"escalations":   escs,
		"state":         state,
	})
}
