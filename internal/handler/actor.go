package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	appmw "github.com/shinyyama/tripmatch-backend/internal/middleware"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

// actorFrom reads the identity RequireAuth stored on the context. A false result has
// already written the 401 response.
func actorFrom(c echo.Context) (service.Actor, bool, error) {
	uid, _ := c.Get(appmw.ContextUID).(string)
	if uid == "" {
		return service.Actor{}, false, c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	role, _ := c.Get(appmw.ContextRole).(string)
	return service.Actor{UID: uid, Role: service.Role(role)}, true, nil
}
