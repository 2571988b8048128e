package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake/start", h.StartSession)
	api.POST("/intake/chat", h.Chat)
}

type startRequest struct {
	Mode string `json:"mode" form:"mode"`
}

type chatRequest struct {
	ThreadID    string `json:"thread_id" form:"thread_id"`
	Message     string `json:"message" form:"message"`
	ClientMsgID string `json:"client_msg_id" form:"client_msg_id"`
}

func (h *Handler) StartSession(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.svc.Start(c.Request().Context(), req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not start session")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id is required")
	}
	if req.ClientMsgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_msg_id is required")
	}

	resp, err := h.svc.Send(c.Request().Context(), req.ThreadID, req.Message, req.ClientMsgID)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "Message cannot be empty.")
	case errors.Is(err, ErrMessageTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, "Message too long.")
	case errors.Is(err, ErrUnknownThread):
		return echo.NewHTTPError(http.StatusNotFound, "Unknown thread_id. Start a session first.")
	case errors.Is(err, ErrIdempotencyConflict):
		return echo.NewHTTPError(http.StatusConflict, "client_msg_id was reused for a different message (idempotency key conflict).")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, resp)
}
