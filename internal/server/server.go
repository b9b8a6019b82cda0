// Package server exposes the link resolver over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"seedlink/internal/resolver"
)

// GetLinker resolves a start URL into a file and its download links.
type GetLinker interface {
	GetLink(ctx context.Context, startURL string) (*resolver.Result, error)
}

// Config describes server wiring.
type Config struct {
	Service GetLinker
	Logger  zerolog.Logger
	// RequestTimeout bounds each /getlink lookup; zero leaves it to the
	// client connection.
	RequestTimeout time.Duration
	// DebugHTMLLimit caps the markup echoed back when no link is found.
	// Zero echoes the whole page.
	DebugHTMLLimit int
}

// Server exposes the HTTP handlers.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	logger  zerolog.Logger
	svc     GetLinker
}

// New wires a new server with the provided configuration.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		svc:    cfg.Service,
	}
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/ping", s.handlePing)
	s.mux.HandleFunc("/getlink", s.handleGetLink)
}
