// Package server exposes GrepWise's core over plain HTTP: ingestion,
// SPL search/query, alarm CRUD, and redaction config, per spec section 6
// (EXTERNAL INTERFACES). There is no Connect/gRPC surface here — see
// DESIGN.md for why that was dropped — so every handler speaks JSON (or
// chunked ndjson for streaming search) over the standard library's
// net/http.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"grepwise/internal/alarm"
	"grepwise/internal/buffer"
	"grepwise/internal/config"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/query"
	"grepwise/internal/redact"
)

// Config bundles Server construction parameters.
type Config struct {
	Logger *slog.Logger

	// JWTSecret verifies bearer tokens carrying RequestContext claims. A
	// nil/empty secret disables verification; every request is then
	// treated as unauthenticated (reveal always denied).
	JWTSecret []byte
}

// Server wires the ingestion buffer, query executor, alarm scheduler, and
// redaction config store behind the HTTP surface spec'd in section 6.
type Server struct {
	buffer *buffer.Buffer
	// executor redacts results on the way out (spec's default). rawExecutor
	// shares the same PartitionReader but was built with a nil redactor; it
	// backs the authorized reveal=true path on GET /logs/{id} only.
	executor    *query.Executor
	rawExecutor *query.Executor
	alarmStore  *alarm.Store
	scheduler   *alarm.Scheduler
	redactor    *redact.Redactor
	redactStore *config.RedactionStore
	sourceStore *config.SourceStore
	jwtSecret   []byte
	logger      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	inFlight sync.WaitGroup
	draining atomic.Bool

	rl       *rateLimiter
	rlCancel context.CancelFunc
	rlWG     sync.WaitGroup

	geoReader *logentry.GeoReader
}

// New builds a Server. executor, alarmStore, and scheduler are required;
// redactor/redactStore/sourceStore may be nil where the corresponding
// surface (reveal, redaction admin, source CRUD) is unused by the caller.
func New(
	buf *buffer.Buffer,
	executor *query.Executor,
	rawExecutor *query.Executor,
	alarmStore *alarm.Store,
	scheduler *alarm.Scheduler,
	redactor *redact.Redactor,
	redactStore *config.RedactionStore,
	sourceStore *config.SourceStore,
	cfg Config,
) *Server {
	return &Server{
		buffer:      buf,
		executor:    executor,
		rawExecutor: rawExecutor,
		alarmStore:  alarmStore,
		scheduler:   scheduler,
		redactor:    redactor,
		redactStore: redactStore,
		sourceStore: sourceStore,
		jwtSecret:   cfg.JWTSecret,
		logger:      logging.Default(cfg.Logger).With("component", "server"),
		rl:          newRateLimiter(50, 100),
	}
}

// SetGeoReader enables GeoIP metadata enrichment on ingest. Nil disables it.
func (s *Server) SetGeoReader(g *logentry.GeoReader) {
	s.geoReader = g
}

// enrich augments entry.Metadata in place with derived fields: a GeoIP
// country code when a GeoReader is configured and the entry carries the
// reader's IP metadata key, and user-agent fields when the entry carries a
// "user_agent" metadata key.
func (s *Server) enrich(entry *logentry.LogEntry) {
	if s.geoReader != nil {
		if country := s.geoReader.Enrich(*entry); country != "" {
			if entry.Metadata == nil {
				entry.Metadata = make(map[string]string)
			}
			entry.Metadata[s.geoReader.OutKey()] = country
		}
	}
	if ua, ok := entry.Metadata["user_agent"]; ok && ua != "" {
		for k, v := range logentry.ParseUserAgent(ua) {
			entry.Metadata[k] = v
		}
	}
}

func (s *Server) registerProbes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /logs", s.handleIngest)
	mux.HandleFunc("POST /sources", s.handlePutSource)

	mux.HandleFunc("GET /logs/search", s.handleSearch)
	mux.HandleFunc("POST /logs/spl", s.handleSPL)
	mux.HandleFunc("GET /logs/{id}", s.handleGetByID)
	mux.HandleFunc("GET /logs/count", s.handleCount)

	mux.HandleFunc("GET /alarms", s.handleListAlarms)
	mux.HandleFunc("POST /alarms", s.handleCreateAlarm)
	mux.HandleFunc("GET /alarms/{id}", s.handleGetAlarm)
	mux.HandleFunc("PUT /alarms/{id}", s.handleUpdateAlarm)
	mux.HandleFunc("DELETE /alarms/{id}", s.handleDeleteAlarm)
	mux.HandleFunc("POST /alarms/{id}/evaluate", s.handleEvaluateAlarm)

	mux.HandleFunc("GET /redaction/config", s.handleGetRedactionConfig)
	mux.HandleFunc("POST /redaction/config", s.handlePostRedactionConfig)
	mux.HandleFunc("POST /redaction/reload", s.handleReloadRedaction)

	s.registerProbes(mux)
	return mux
}

// trackingMiddleware rejects new requests while draining and tracks
// in-flight requests so Stop can wait for them to finish.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			http.Error(w, "server is draining", http.StatusServiceUnavailable)
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Done()
		next.ServeHTTP(w, r)
	})
}

// Handler builds the full middleware chain over the route mux: tracking →
// auth claim extraction → rate limit → compress → mux.
func (s *Server) Handler() http.Handler {
	mux := s.buildMux()
	chain := compressMiddleware(mux)
	chain = rateLimitMiddleware(s.rl)(chain)
	chain = authMiddleware(s.jwtSecret)(chain)
	chain = s.trackingMiddleware(chain)
	return chain
}

// Serve starts the server on listener and blocks until it is stopped.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	rlCtx, rlCancel := context.WithCancel(context.Background())
	s.rlCancel = rlCancel
	s.rl.startCleanup(rlCtx, &s.rlWG, 3*time.Minute, 5*time.Minute)

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server starting", "addr", listener.Addr().String())
	err := s.httpSrv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the listener's bound address, valid once Serve/ServeTCP has
// started. Used by callers that bind to ":0" and need the chosen port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ServeTCP starts the server listening on addr.
func (s *Server) ServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Stop drains in-flight requests (if drain is true) then gracefully shuts
// down the HTTP server.
func (s *Server) Stop(ctx context.Context, drain bool) error {
	if drain {
		s.draining.Store(true)
		s.inFlight.Wait()
	}

	if s.rlCancel != nil {
		s.rlCancel()
		s.rlWG.Wait()
	}

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server stopping")
	return srv.Shutdown(ctx)
}
