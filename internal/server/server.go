package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/tripmatch-backend/internal/ai"
	"github.com/shinyyama/tripmatch-backend/internal/handler"
	appmw "github.com/shinyyama/tripmatch-backend/internal/middleware"
	"github.com/shinyyama/tripmatch-backend/internal/service"
	"gorm.io/gorm"
)

type Server struct {
	e     *echo.Echo
	svcs  *Services
	ready atomic.Bool
}

type Options struct {
	Verifier  appmw.Verifier
	Estimator ai.WeightEstimator
	SHA       string
	BuildTime string
}

// New builds the HTTP server. When db is nil every /api route answers 503 until SetDB is called.
func New(db *gorm.DB, svcs *Services, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestContext)
	e.Use(middleware.Logger())
	e.Use(middleware.BodyLimit("12M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			host := u.Hostname()
			if strings.HasSuffix(host, "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	s := &Server{e: e, svcs: svcs}
	s.ready.Store(db != nil)

	matchHandler := handler.NewMatchHandler(svcs.Matches, svcs.Booking)
	tripHandler := handler.NewTripHandler(svcs.Trips)
	requestHandler := handler.NewRequestHandler(svcs.Requests)
	aiHandler := handler.NewAIHandler(opts.Estimator)

	e.GET("/healthz", func(c echo.Context) error {
		dbState := "connecting"
		if s.ready.Load() {
			dbState = "ready"
		}
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"db":         dbState,
			"git_sha":    opts.SHA,
			"build_time": opts.BuildTime,
		})
	})

	auth := appmw.NewAuthMiddleware(opts.Verifier).RequireAuth
	shopper := appmw.RequireRole(string(service.RoleShopper))
	traveler := appmw.RequireRole(string(service.RoleTraveler))
	scheduler := appmw.RequireRole(string(service.RoleScheduler))

	api := e.Group("/api", s.requireDB)
	api.POST("/matches/search", matchHandler.Search, auth)
	api.GET("/matches/:id", matchHandler.Get, auth)
	api.POST("/matches/:id/accept", matchHandler.Accept, auth, traveler)
	api.POST("/matches/:id/decline", matchHandler.Decline, auth, traveler)
	api.POST("/matches/:id/cancel", matchHandler.Cancel, auth)
	api.GET("/me/matches", matchHandler.ListMine, auth)

	api.POST("/trips", tripHandler.Create, auth, traveler)
	api.GET("/trips/:id", tripHandler.Get, auth)
	api.GET("/me/trips", tripHandler.ListMine, auth, traveler)
	api.PATCH("/trips/:id", tripHandler.Revise, auth, traveler)
	api.POST("/trips/:id/activate", tripHandler.Activate, auth, traveler)
	api.POST("/trips/:id/cancel", tripHandler.Cancel, auth, traveler)
	api.POST("/trips/:id/airborne", tripHandler.MarkAirborne, auth, traveler)
	api.POST("/trips/:id/arrived", tripHandler.MarkArrived, auth, traveler)
	api.POST("/trips/:id/complete", tripHandler.Complete, auth, traveler)
	api.POST("/trips/:id/ticket", tripHandler.UploadTicket, auth, traveler)

	api.POST("/requests", requestHandler.Create, auth, shopper)
	api.POST("/requests/estimate-weight", aiHandler.EstimateWeight, auth, shopper)
	api.GET("/requests/:id", requestHandler.Get, auth)
	api.GET("/me/requests", requestHandler.ListMine, auth, shopper)
	api.POST("/requests/:id/publish", requestHandler.Publish, auth, shopper)
	api.POST("/requests/:id/cancel", requestHandler.Cancel, auth, shopper)
	api.GET("/requests/:id/matches", matchHandler.ForRequest, auth, shopper)
	api.POST("/requests/:id/bookings", matchHandler.Book, auth, shopper)

	internal := e.Group("/internal", s.requireDB)
	internal.POST("/matches/expire", matchHandler.Expire, auth, scheduler)

	return s
}

func (s *Server) requireDB(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.ready.Load() {
			return c.JSON(http.StatusServiceUnavailable, handler.NewErrorResponse("unavailable", "database is not connected yet"))
		}
		return next(c)
	}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

func (s *Server) SetDB(db *gorm.DB) {
	s.svcs.SetDB(db)
	s.ready.Store(db != nil)
}
