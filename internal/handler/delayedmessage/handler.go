package delayedmessage

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/card-notifier/internal/handler"
	"github.com/jwalitptl/card-notifier/internal/model"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, payload model.DelayedPayload, delayMinutes int) (*model.DelayedMessage, error)
}

type Handler struct {
	enqueuer Enqueuer
}

func NewHandler(enqueuer Enqueuer) *Handler {
	return &Handler{enqueuer: enqueuer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/delayed-messages", h.Create)
}

type createRequest struct {
	Type         model.DelayedMessageType `json:"type" binding:"required"`
	DelayMinutes int                      `json:"delay_minutes"`
	Payload      json.RawMessage          `json:"payload" binding:"required"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	draft := model.DelayedMessage{Type: req.Type, Payload: req.Payload}
	payload, err := draft.DecodePayload()
	if err != nil {
		err = apperrors.InvalidPayload("invalid payload", err)
		c.JSON(handler.StatusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	msg, err := h.enqueuer.Enqueue(c.Request.Context(), payload, req.DelayMinutes)
	if err != nil {
		_ = c.Error(err)
		c.JSON(handler.StatusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(msg))
}
