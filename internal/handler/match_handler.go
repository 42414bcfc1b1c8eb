package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/matching"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

type MatchHandler struct {
	matches service.MatchService
	booking service.BookingService
}

func NewMatchHandler(matches service.MatchService, booking service.BookingService) *MatchHandler {
	return &MatchHandler{matches: matches, booking: booking}
}

type BookRequest struct {
	TripID string `json:"tripId"`
}

func diagnostics(c echo.Context) bool {
	on, _ := strconv.ParseBool(c.QueryParam("diagnostics"))
	return on
}

// Search ranks trips for an unsaved request payload. Nothing is reserved.
func (h *MatchHandler) Search(c echo.Context) error {
	var req matching.RequestPayload
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	res, err := h.matches.FindMatches(c.Request().Context(), req, diagnostics(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSearchResponse(res))
}

func (h *MatchHandler) ForRequest(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	res, err := h.matches.FindForRequest(c.Request().Context(), actor, c.Param("id"), diagnostics(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSearchResponse(res))
}

func (h *MatchHandler) Book(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.TripID == "" {
		return badRequest(c, "tripId is required")
	}
	m, err := h.booking.Book(c.Request().Context(), actor, c.Param("id"), req.TripID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMatchResponse(m))
}

func (h *MatchHandler) Accept(c echo.Context) error {
	return h.respond(c, true)
}

func (h *MatchHandler) Decline(c echo.Context) error {
	return h.respond(c, false)
}

func (h *MatchHandler) respond(c echo.Context, accept bool) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	m, err := h.booking.Respond(c.Request().Context(), actor, c.Param("id"), accept)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMatchResponse(m))
}

func (h *MatchHandler) Cancel(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	m, err := h.booking.Cancel(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMatchResponse(m))
}

func (h *MatchHandler) Get(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	m, err := h.matches.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMatchResponse(m))
}

func (h *MatchHandler) ListMine(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	ms, err := h.matches.ListMine(c.Request().Context(), actor)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]MatchResponse, 0, len(ms))
	for i := range ms {
		out = append(out, toMatchResponse(&ms[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": out})
}

// Expire runs one expiry sweep; the scheduler calls it on a timer.
func (h *MatchHandler) Expire(c echo.Context) error {
	actor, ok, werr := actorFrom(c)
	if !ok {
		return werr
	}
	res, err := h.booking.ExpireStale(c.Request().Context(), actor)
	if err != nil {
		return writeError(c, err)
	}
	expired := res.Expired
	if expired == nil {
		expired = []string{}
	}
	return c.JSON(http.StatusOK, SweepResponse{Expired: expired, Skipped: res.Skipped, Failed: res.Failed})
}
