// Package server exposes the relay routes over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
	"github.com/mytourbook/tourbook-relay/pkg/strava"
	"github.com/mytourbook/tourbook-relay/pkg/suunto"
	"github.com/mytourbook/tourbook-relay/pkg/weather"
	"github.com/segmentio/ksuid"
)

// Version is overridden at build time with -ldflags "-X .../pkg/server.Version=..."
var Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// Route is one entry of the dispatch table.
type Route struct {
	Method  string
	Path    string
	Name    string
	Handler relay.Handler
}

type Option func(*Server) error

func WithRelayClient(client *relay.Client) Option {
	return func(s *Server) error {
		s.client = client
		return nil
	}
}

func WithUploadOrchestrator(uploads suunto.UploadOrchestrator) Option {
	return func(s *Server) error {
		s.uploads = uploads
		return nil
	}
}

type Server struct {
	cfg     *config.Config
	client  *relay.Client
	uploads suunto.UploadOrchestrator
	routes  []Route
}

func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	s := &Server{cfg: cfg}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.client == nil {
		s.client = relay.NewClient(
			relay.WithUserAgent("tourbook-relay/"+Version),
			relay.WithTimeout(cfg.UpstreamTimeout),
		)
	}

	suuntoAPI := suunto.NewAPI(cfg.Suunto)
	if s.uploads == nil {
		s.uploads = suunto.NewUploader(suuntoAPI, s.client)
	}

	s.routes = []Route{
		{http.MethodPost, "/strava/token", "strava token exchange", strava.NewTokenExchange(cfg.Strava, s.client)},
		{http.MethodPost, "/suunto/token", "suunto token exchange", relay.Relay(s.client, suunto.NewTokenRoute(cfg.Suunto))},
		{http.MethodPost, "/suunto/route/import", "suunto route import", relay.Relay(s.client, suunto.NewRouteImport(suuntoAPI))},
		{http.MethodGet, "/suunto/workouts", "suunto workouts", relay.Relay(s.client, suunto.NewWorkouts(suuntoAPI))},
		{http.MethodGet, "/suunto/workout/exportFit", "suunto FIT export", relay.Relay(s.client, suunto.NewExportFit(suuntoAPI))},
		{http.MethodPost, "/suunto/workout/upload", "suunto workout upload", relay.HandlerFunc(s.uploads.StartUpload)},
		{http.MethodGet, "/suunto/workout/upload/:id", "suunto upload status", relay.HandlerFunc(s.uploads.UploadStatus)},
		{http.MethodGet, "/weatherapi", "weatherapi history", relay.Relay(s.client, weather.NewWeatherAPIHistory(cfg.WeatherAPI))},
		{http.MethodGet, "/openweathermap/timemachine", "openweathermap timemachine", relay.Relay(s.client, weather.NewTimeMachine(cfg.OpenWeatherMap))},
		{http.MethodGet, "/openweathermap/air_pollution", "openweathermap air pollution", relay.Relay(s.client, weather.NewAirPollution(cfg.OpenWeatherMap))},
	}

	return s, nil
}

// Routes returns the dispatch table.
func (s *Server) Routes() []Route {
	return s.routes
}

func (s *Server) MountRoutes(group *echo.Group) {
	group.Use(
		ErrorHandlerMiddleware,
		middleware.BodyLimit(s.cfg.BodyLimit),
	)

	group.GET("/", s.HomeEndpoint)
	group.GET("/health", s.HealthEndpoint)

	for _, route := range s.routes {
		group.Add(route.Method, route.Path, Adapt(route.Handler))
	}
}

// Echo builds the complete HTTP stack: recovery, request ids, request logging and the routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(
		middleware.Recover(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: func() string {
				return ksuid.New().String()
			},
		}),
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:    true,
			LogURIPath:   true,
			LogStatus:    true,
			LogLatency:   true,
			LogRequestID: true,
			LogRemoteIP:  true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				slog.Info("Request",
					"method", v.Method,
					"path", v.URIPath,
					"status", v.Status,
					"latency", v.Latency,
					"request_id", v.RequestID,
					"remote_ip", v.RemoteIP,
				)
				return nil
			},
		}),
	)

	s.MountRoutes(e.Group(""))
	return e
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	e := s.Echo()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting tourbook relay", "version", Version, "addr", s.cfg.Addr())
	if err := e.Start(s.cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

func (s *Server) HomeEndpoint(c echo.Context) error {
	return c.Redirect(http.StatusFound, s.cfg.HomepageURL)
}

type health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) HealthEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, health{Status: "ok", Version: Version})
}
