package report

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	reports Repository
	jobs    JobRepository
}

func NewHandler(reports Repository, jobs JobRepository) *Handler {
	return &Handler{reports: reports, jobs: jobs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/intake/report/:thread_id", h.GetLatest)
	api.GET("/intake/jobs/:job_id", h.GetJob)
}

func (h *Handler) GetLatest(c echo.Context) error {
	rep, err := h.reports.LatestByThread(c.Request().Context(), c.Param("thread_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if rep == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Report not generated yet.")
	}
	return c.JSON(http.StatusOK, map[string]any{"latest": rep})
}

func (h *Handler) GetJob(c echo.Context) error {
	job, err := h.jobs.GetByID(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}
	return c.JSON(http.StatusOK, job)
}
