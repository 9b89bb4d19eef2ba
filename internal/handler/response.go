package handler

import (
	"errors"
	"net/http"

	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// StatusFor maps an AppError code to an HTTP status.
func StatusFor(err error) int {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrInvalidPayload, apperrors.ErrUnsupportedPayload:
		return http.StatusBadRequest
	case apperrors.ErrChannelFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
