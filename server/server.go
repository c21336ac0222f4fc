// Package server exposes the tiling worker over HTTP. It owns the
// composition root: one Holder for the worker bridge, one Catalog of
// rendered overlays, and the services routing between them.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/spatialkit/tessera/bridge"
	"github.com/spatialkit/tessera/config"
)

var log = commonlog.GetLogger("tessera.server")

// Server wires the worker holder, the overlay catalog and the HTTP API.
type Server struct {
	cfg     *config.Config
	version string
	holder  *bridge.Holder
	catalog *Catalog
	mux     *http.ServeMux
	httpSrv *http.Server
	started time.Time
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	spawn   bridge.SpawnFunc
	version string
}

// WithSpawner replaces the worker factory built from the configuration.
// The CLI shares one spawner between commands, and tests inject
// in-process fakes through this.
func WithSpawner(spawn bridge.SpawnFunc) ServerOption {
	return func(c *serverConfig) { c.spawn = spawn }
}

// WithVersion sets the version string reported by /api/health.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) { c.version = version }
}

// New creates a Server from the given configuration. The worker is not
// spawned here; the holder starts it on the first command.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	sc := &serverConfig{version: "dev"}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.spawn == nil {
		sc.spawn = bridge.Spawner(cfg.Worker.Command, cfg.Worker.Args, cfg.Worker.Dir, cfg.Worker.Env)
	}

	catalog, err := NewCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if err := catalog.LoadAll(); err != nil {
		catalog.Close()
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		version: sc.version,
		holder:  bridge.NewHolder(sc.spawn),
		catalog: catalog,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}

	overlays := NewOverlayService(s.holder, catalog)
	loads := NewLoadService(s.holder)
	admin := NewAdminService(s.holder, sc.version, s.started)

	s.mux.HandleFunc("/api/overlays", withCORS(overlays.handleOverlays))
	s.mux.HandleFunc("/api/overlays/{id}", withCORS(overlays.handleOverlayByID))
	s.mux.HandleFunc("/api/overlays/{id}/tiles/{zoom}/{x}/{y}", withCORS(overlays.handleTile))
	s.mux.HandleFunc("/api/datasets", withCORS(loads.handleDatasets))
	s.mux.HandleFunc("/api/images", withCORS(loads.handleImages))
	s.mux.HandleFunc("/api/segmentations", withCORS(loads.handleSegmentations))
	s.mux.HandleFunc("/api/worker/restart", withCORS(admin.handleWorkerRestart))
	s.mux.HandleFunc("/api/health", withCORS(admin.handleHealth))

	s.httpSrv = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.mux,
	}

	return s, nil
}

// Handler returns the HTTP handler; tests serve it through httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// Holder returns the worker holder, for callers that dispatch commands
// outside the HTTP API.
func (s *Server) Holder() *bridge.Holder { return s.holder }

// ListenAndServe starts the HTTP server on the configured address and
// blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	log.Infof("tessera host listening on %s", s.cfg.Server.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, then releases the worker and the
// catalog.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := s.holder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ---------------------------------------------------------------------------
// HTTP helpers shared by the services
// ---------------------------------------------------------------------------

// withCORS wraps a handler with the CORS headers and preflight response
// every API route carries.
func withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}

		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the single-string error body the UI presents.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// bridgeStatus maps a failed worker call onto an HTTP status: worker
// application errors are the caller's problem, a missing worker is
// temporary, and transport or framing failures mean the gateway to the
// worker is broken.
func bridgeStatus(err error) int {
	switch bridge.KindOf(err) {
	case bridge.KindApplication:
		return 400
	case bridge.KindInitialization:
		return 503
	case bridge.KindIO, bridge.KindProtocol:
		return 502
	default:
		return 500
	}
}
