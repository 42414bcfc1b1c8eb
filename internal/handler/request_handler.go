package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

type RequestHandler struct {
	svc service.RequestService
}

func NewRequestHandler(svc service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

type PublishRequest struct {
	Mode string `json:"mode"`
}

func (h *RequestHandler) Create(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	var req matching.RequestPayload
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	r, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toRequestResponse(r))
}

func (h *RequestHandler) Get(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	r, err := h.svc.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRequestResponse(r))
}

func (h *RequestHandler) ListMine(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	rs, err := h.svc.ListMine(c.Request().Context(), actor)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]RequestResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toRequestResponse(&rs[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"requests": out})
}

// Publish opens a draft for offers. An empty mode means "published".
func (h *RequestHandler) Publish(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	mode := model.RequestStatus(req.Mode)
	if mode == "" {
		mode = model.RequestStatusPublished
	}
	r, err := h.svc.Publish(c.Request().Context(), actor, c.Param("id"), mode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRequestResponse(r))
}

func (h *RequestHandler) Cancel(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	r, err := h.svc.Cancel(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRequestResponse(r))
}
