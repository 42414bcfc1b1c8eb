package handler

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/model"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

type TripHandler struct {
	svc service.TripService
}

func NewTripHandler(svc service.TripService) *TripHandler {
	return &TripHandler{svc: svc}
}

func (h *TripHandler) Create(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	var req service.TripInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	t, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toTripResponse(t))
}

func (h *TripHandler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) ListMine(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	trips, err := h.svc.ListMine(c.Request().Context(), actor)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]TripResponse, 0, len(trips))
	for i := range trips {
		out = append(out, toTripResponse(&trips[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"trips": out})
}

func (h *TripHandler) Revise(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	var req service.TripRevision
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	t, err := h.svc.Revise(c.Request().Context(), actor, c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

type tripMove func(ctx context.Context, actor service.Actor, id string) (*model.Trip, error)

func (h *TripHandler) move(c echo.Context, fn tripMove) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	t, err := fn(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) Activate(c echo.Context) error {
	return h.move(c, h.svc.Activate)
}

func (h *TripHandler) Cancel(c echo.Context) error {
	return h.move(c, h.svc.Cancel)
}

func (h *TripHandler) MarkAirborne(c echo.Context) error {
	return h.move(c, h.svc.MarkAirborne)
}

func (h *TripHandler) MarkArrived(c echo.Context) error {
	return h.move(c, h.svc.MarkArrived)
}

func (h *TripHandler) Complete(c echo.Context) error {
	return h.move(c, h.svc.Complete)
}

// UploadTicket takes the boarding pass or e-ticket as the multipart field "ticket".
func (h *TripHandler) UploadTicket(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	fh, err := c.FormFile("ticket")
	if err != nil {
		return badRequest(c, "ticket file is required")
	}
	if fh.Size > MaxTicketBytes {
		return badRequest(c, "ticket file is too large")
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "cannot read ticket file")
	}
	defer f.Close()
	t, err := h.svc.AttachTicket(c.Request().Context(), actor, c.Param("id"), fh.Filename, contentType, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

const MaxTicketBytes = 10 << 20
