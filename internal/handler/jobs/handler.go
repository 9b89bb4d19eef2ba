package jobs

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/card-notifier/internal/handler"
	"github.com/jwalitptl/card-notifier/internal/worker"
)

type Runner interface {
	Names() []string
	RunByName(ctx context.Context, name string) (*worker.Report, error)
}

type Handler struct {
	runner Runner
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.GET("", h.List)
		jobs.POST("/:name/run", h.Run)
	}
}

func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.runner.Names()))
}

// Run executes one job immediately, under the same lock as its schedule.
func (h *Handler) Run(c *gin.Context) {
	report, err := h.runner.RunByName(c.Request.Context(), c.Param("name"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
	case errors.Is(err, worker.ErrUnknownJob):
		c.JSON(http.StatusNotFound, handler.NewErrorResponse(err.Error()))
	case errors.Is(err, worker.ErrJobRunning):
		c.JSON(http.StatusConflict, handler.NewErrorResponse(err.Error()))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, &handler.Response{
			Status:  "error",
			Message: err.Error(),
			Data:    report,
		})
	}
}
