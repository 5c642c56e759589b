// Package httpapi implements Snapdog's JSON control surface: the
// zone/client CRUD-ish endpoints, system status/stats/errors, the
// Subsonic cover-art passthrough, and the three health probes the
// supervising process (or a container orchestrator) polls. Route
// registration, the withLogging middleware, and the writeJSON
// encode-and-log-on-failure helper are grounded directly on
// internal/api.Server's Start/withLogging/writeJSON shape; every
// handler here returns the spec's {success, data?, error?} envelope
// instead of the teacher's ad-hoc per-endpoint JSON shapes.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/connwatch"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/orchestrator"
	"github.com/snapdog/snapdog/internal/result"
	"github.com/snapdog/snapdog/internal/subsonic"
	"github.com/snapdog/snapdog/internal/zone"
)

// ServiceStatuses is the narrow capability this package needs from
// internal/connwatch.Manager to report per-dependency health on
// GET /api/v1/system/status, set via SetServiceStatuses once
// cmd/snapdogd has built the watchers for Snapcast and Subsonic.
type ServiceStatuses interface {
	Status() map[string]connwatch.ServiceStatus
}

// SnapcastStatusChecker is the narrow capability the /snapcast/status
// passthrough needs. Defined locally, as in internal/orchestrator and
// internal/statepublisher, so this package does not depend on
// internal/snapcast's wire client directly.
type SnapcastStatusChecker interface {
	GetServerStatus(ctx context.Context) ([]grouping.SnapcastGroup, error)
}

// CoverFetcher is the narrow capability the cover-art endpoint needs
// from internal/subsonic.Client.
type CoverFetcher interface {
	GetCoverArt(ctx context.Context, coverID string) (*subsonic.CoverArt, *result.Error)
}

// RequestMetrics is the narrow capability this package needs from
// internal/metrics.Metrics, kept local so httpapi does not import the
// concrete Prometheus types directly.
type RequestMetrics interface {
	RecordHTTPRequest(method, route string, status int, seconds float64)
}

// MetricsHandler is the narrow capability this package needs to mount
// GET /metrics, satisfied by internal/metrics.Metrics.Handler.
type MetricsHandler interface {
	Handler() http.Handler
}

// Server is the HTTP control surface.
type Server struct {
	address string
	port    int

	zones   *zone.Store
	clients *client.Store
	med     *mediator.Mediator

	zoneCfg   []config.ZoneConfig
	clientCfg []config.ClientConfig

	snapcast       SnapcastStatusChecker
	cover          CoverFetcher
	metrics        RequestMetrics
	metricsHandler MetricsHandler
	services       ServiceStatuses

	logger *slog.Logger
	server *http.Server

	stats    *Stats
	errorLog *ErrorLog

	readyMu    sync.Mutex
	readyState orchestrator.State
}

// New builds a Server. snapcast, cover, and metrics may all be nil —
// the snapcast passthrough then answers 503, cover art 404, and
// request metrics are skipped, rather than panic,
// matching internal/api.Server's "not configured" guard pattern for
// optional dependencies.
func New(address string, port int, zones *zone.Store, clients *client.Store, med *mediator.Mediator, zoneCfg []config.ZoneConfig, clientCfg []config.ClientConfig, snapcast SnapcastStatusChecker, cover CoverFetcher, metrics RequestMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		address:   address,
		port:      port,
		zones:     zones,
		clients:   clients,
		med:       med,
		zoneCfg:   zoneCfg,
		clientCfg: clientCfg,
		snapcast:  snapcast,
		cover:     cover,
		metrics:   metrics,
		logger:    logger,
		stats:     NewStats(),
		errorLog:  NewErrorLog(100),
	}
	if mh, ok := metrics.(MetricsHandler); ok {
		s.metricsHandler = mh
	}
	mediator.Subscribe(med, "OrchestratorStateChanged", func(n orchestrator.StateChanged) {
		s.readyMu.Lock()
		s.readyState = n.State
		s.readyMu.Unlock()
	})
	return s
}

// SetServiceStatuses wires the connwatch manager tracking Snapcast/
// Subsonic reachability. Optional; GET /api/v1/system/status omits the
// "services" field when unset.
func (s *Server) SetServiceStatuses(p ServiceStatuses) {
	s.services = p
}

// Mux builds the request multiplexer without starting a listener, so
// tests can exercise routes with httptest.NewServer.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/system/status", s.handleSystemStatus)
	mux.HandleFunc("GET /api/v1/system/version", s.handleSystemVersion)
	mux.HandleFunc("GET /api/v1/system/stats", s.handleSystemStats)
	mux.HandleFunc("GET /api/v1/system/errors", s.handleSystemErrors)

	mux.HandleFunc("GET /api/v1/zones", s.handleZoneList)
	mux.HandleFunc("GET /api/v1/zones/{i}", s.handleZoneGet)
	mux.HandleFunc("PUT /api/v1/zones/{i}/volume", s.handleZoneVolume)
	mux.HandleFunc("PUT /api/v1/zones/{i}/mute", s.handleZoneMute)
	mux.HandleFunc("POST /api/v1/zones/{i}/play", s.handleZonePlayback(commands.ActionPlay))
	mux.HandleFunc("POST /api/v1/zones/{i}/pause", s.handleZonePlayback(commands.ActionPause))
	mux.HandleFunc("POST /api/v1/zones/{i}/stop", s.handleZonePlayback(commands.ActionStop))
	mux.HandleFunc("POST /api/v1/zones/{i}/next", s.handleZonePlayback(commands.ActionNext))
	mux.HandleFunc("POST /api/v1/zones/{i}/prev", s.handleZonePlayback(commands.ActionPrev))
	mux.HandleFunc("PUT /api/v1/zones/{i}/playlist", s.handleZonePlaylist)

	mux.HandleFunc("GET /api/v1/clients", s.handleClientList)
	mux.HandleFunc("GET /api/v1/clients/{i}", s.handleClientGet)
	mux.HandleFunc("PUT /api/v1/clients/{i}/volume", s.handleClientVolume)
	mux.HandleFunc("PUT /api/v1/clients/{i}/mute", s.handleClientMute)
	mux.HandleFunc("PUT /api/v1/clients/{i}/zone", s.handleClientZone)

	mux.HandleFunc("GET /api/v1/snapcast/status", s.handleSnapcastStatus)
	mux.HandleFunc("GET /api/v1/cover/{coverId}", s.handleCoverArt)
	mux.HandleFunc("GET /api/v1/icons", s.handleIcons)

	mux.HandleFunc("GET /health", s.handleHealthReady)
	mux.HandleFunc("GET /health/ready", s.handleHealthReady)
	mux.HandleFunc("GET /health/live", s.handleHealthLive)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler.Handler())
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("starting http api", "address", s.address, "port", s.port)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.stats.RecordRequest()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, elapsed.Seconds())
		}
	})
}

// statusRecorder captures the status code written so withLogging and
// the metrics hook can report it; http.ResponseWriter has no getter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level
// — typically a client disconnecting mid-response, not actionable.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) respondOK(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) respondCreated(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// respondErr maps a result.Kind to its HTTP status and writes the
// {success:false, error:{code, message}} envelope per spec.md §7's
// user-visible mapping. Every failure, Invalid included, is also
// recorded to the system error log for GET /api/v1/system/errors.
func (s *Server) respondErr(w http.ResponseWriter, e *result.Error) {
	status := e.Kind.HTTPStatus()
	s.stats.RecordError()
	s.errorLog.Record(string(e.Kind), e.Error())
	s.writeJSON(w, status, Response{
		Success: false,
		Error:   &ErrorBody{Code: string(e.Kind), Message: e.Message},
	})
}

func (s *Server) respondInvalid(w http.ResponseWriter, format string, args ...any) {
	s.respondErr(w, result.New(result.Invalid, format, args...))
}
