package sms

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/card-notifier/internal/handler"
)

// DeliveryRecorder applies provider delivery reports.
type DeliveryRecorder interface {
	MarkDelivered(ctx context.Context, id int64) (bool, error)
}

type Handler struct {
	recorder DeliveryRecorder
}

func NewHandler(recorder DeliveryRecorder) *Handler {
	return &Handler{recorder: recorder}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sms/:id/delivered", h.Delivered)
}

func (h *Handler) Delivered(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid sms message id"))
		return
	}

	changed, err := h.recorder.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		c.JSON(handler.StatusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "changed": changed}))
}
