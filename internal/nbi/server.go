// Package nbi is the observer-facing interface of the simulator: the HTTP
// command and polygon endpoints and the websocket observer stream.
package nbi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/geofence-simulator/internal/journal"
	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/internal/observability"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
	"github.com/signalsfoundry/geofence-simulator/model"
)

// TickReader reads journaled ticks back for the journal endpoint.
type TickReader interface {
	RecentTicks(ctx context.Context, limit int) ([]journal.TickRecord, error)
}

const (
	defaultJournalLimit = 20
	maxJournalLimit     = 500
)

// Server serves the northbound HTTP and websocket surface for one
// simulator.
type Server struct {
	sim      *sim.Simulator
	hub      *Hub
	log      logging.Logger
	period   time.Duration
	upgrader websocket.Upgrader

	httpMetrics    *observability.HTTPCollector
	metricsHandler http.Handler
	journal        TickReader
}

// ServerOption customises Server construction.
type ServerOption func(*Server)

// WithDefaultPeriod sets the tick period used when a command names none.
func WithDefaultPeriod(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithHTTPMetrics records per-route request metrics.
func WithHTTPMetrics(c *observability.HTTPCollector) ServerOption {
	return func(s *Server) {
		s.httpMetrics = c
	}
}

// WithMetricsHandler mounts h at /metrics on the main router.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithJournalReader exposes recent journaled ticks at /journal/ticks.
func WithJournalReader(r TickReader) ServerOption {
	return func(s *Server) {
		s.journal = r
	}
}

// NewServer wires a server around the simulator and its observer hub.
func NewServer(simulator *sim.Simulator, hub *Hub, log logging.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	s := &Server{
		sim:      simulator,
		hub:      hub,
		log:      log,
		period:   sim.DefaultPeriod,
		upgrader: newUpgrader(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(s.log))
	r.Use(CORSMiddleware())
	r.Use(TracingMiddleware())
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Middleware())
	}
	r.Use(LoggingMiddleware())
	return r
}

// Router returns the main router: observer stream, commands, queries and
// the polygon endpoint.
func (s *Server) Router() *gin.Engine {
	r := s.newEngine()

	r.GET("/healthz", s.handleHealth)
	r.GET("/ws", s.handleObserver)
	r.GET("/polygon", s.handleCreatePolygon)

	r.GET("/areas", s.handleListAreas)
	r.DELETE("/areas", s.handleClearAreas)
	r.GET("/devices", s.handleListDevices)
	r.GET("/status", s.handleStatus)

	commands := r.Group("/commands")
	for _, name := range []string{CommandStart, CommandReset, CommandStop, CommandRemoveAreas} {
		commands.POST("/"+name, s.handleCommand(name))
	}

	if s.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.metricsHandler))
	}
	if s.journal != nil {
		r.GET("/journal/ticks", s.handleJournalTicks)
	}
	return r
}

// PolygonRouter returns a router serving only the polygon endpoint, for the
// dedicated polygon listener.
func (s *Server) PolygonRouter() *gin.Engine {
	r := s.newEngine()
	r.GET("/healthz", s.handleHealth)
	r.GET("/polygon", s.handleCreatePolygon)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreatePolygon builds and registers the square anchored at the
// lat/long query parameters and echoes the GeoJSON feature back.
func (s *Server) handleCreatePolygon(c *gin.Context) {
	name, lat, long := c.Query("name"), c.Query("lat"), c.Query("long")

	ctx, span := StartChildSpan(c.Request.Context(), "nbi.CreatePolygon", "polygon", name,
		attribute.String("polygon.lat", lat),
		attribute.String("polygon.long", long),
	)
	defer span.End()

	polygon, err := s.sim.CreatePolygon(ctx, name, lat, long)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	span.SetAttributes(attribute.String("polygon.id", polygon.ID))
	s.hub.BroadcastAreas(ctx, s.sim.Polygons())
	c.JSON(http.StatusOK, polygon)
}

func (s *Server) handleListAreas(c *gin.Context) {
	c.JSON(http.StatusOK, nonNilPolygons(s.sim.Polygons()))
}

func (s *Server) handleClearAreas(c *gin.Context) {
	if err := s.dispatch(c.Request.Context(), CommandRemoveAreas, ""); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListDevices(c *gin.Context) {
	devices := s.sim.Devices()
	if devices == nil {
		devices = []model.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

type statusResponse struct {
	sim.Status
	Observers int `json:"observers"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: s.sim.Status(), Observers: s.hub.Len()})
}

// handleCommand runs a named command. The optional period query parameter
// is milliseconds or a Go duration.
func (s *Server) handleCommand(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := StartChildSpan(c.Request.Context(), "nbi.Command", "command", name)
		defer span.End()

		if err := s.dispatch(ctx, name, c.Query("period")); err != nil {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, statusResponse{Status: s.sim.Status(), Observers: s.hub.Len()})
	}
}

func (s *Server) handleJournalTicks(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultJournalLimit, maxJournalLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	ticks, err := s.journal.RecentTicks(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticks)
}
