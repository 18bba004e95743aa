// Package web serves the homecounter status page and its JSON views.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Source provides the state the pages are rendered from. *status.Tracker
// implements it.
type Source interface {
	Snapshot() status.Snapshot
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	source     Source
	log        *log.Entry
}

// New creates a Server that renders snapshots taken from source.
func New(addr string, source Source) *Server {
	s := &Server{
		source: source,
		log:    log.WithField("component", "app/web"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.handleIndex))
	mux.HandleFunc("/index.json", readOnly(s.handleJSON))
	mux.HandleFunc("/counter.json", readOnly(s.handleCounter))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully. It returns nil after a shutdown triggered by ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Infof("http status server listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// readOnly rejects everything but GET and HEAD.
func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	renderHTML(w, s.source.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, status.FormatJSON(s.source.Snapshot()))
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, status.FormatCounter(s.source.Snapshot()))
}

func (s *Server) writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(body); err != nil {
		s.log.Debugf("write response: %v", err)
	}
}
