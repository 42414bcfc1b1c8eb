package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/domainerr"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// writeError maps engine errors onto HTTP statuses. Anything unrecognised is logged and
// reported as a 500 without leaking its text.
func writeError(c echo.Context, err error) error {
	var ve *domainerr.ValidationError
	switch {
	case errors.As(err, &ve):
		resp := NewErrorResponse("validation_error", ve.Msg)
		resp.Error.Field = ve.Field
		return c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", err.Error()))
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", err.Error()))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", err.Error()))
	case errors.Is(err, service.ErrCapacityConflict):
		resp := NewErrorResponse("capacity_conflict", err.Error())
		resp.Error.Retryable = domainerr.Retryable(err)
		return c.JSON(http.StatusConflict, resp)
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, NewErrorResponse("invalid_state_transition", err.Error()))
	}
	log.Printf("[http] rid=%s path=%s stage=internal_error err=%v", reqctx.RID(c.Request().Context()), c.Path(), err)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "unexpected error"))
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", message))
}
