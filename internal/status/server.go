// Package status serves a small read-only HTTP view of the host.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"padcast/internal/ingest"
	"padcast/internal/plugin"
	"padcast/internal/storage"
	logx "padcast/pkg/logx"
)

type PluginsSource interface {
	Snapshot() plugin.PluginsSnapshot
}

type IngestSource interface {
	Stats() ingest.Stats
}

type JournalSource interface {
	Recent(ctx context.Context, limit int) ([]storage.Entry, error)
}

// Sources feed the handlers; Ingest and Journal may be nil.
type Sources struct {
	Plugins PluginsSource
	Ingest  IngestSource
	Journal JournalSource
	Version string
}

type Server struct {
	log     logx.Logger
	src     Sources
	started time.Time
}

func New(log logx.Logger, src Sources) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log.With(logx.String("comp", "status")), src: src, started: time.Now()}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"version": s.src.Version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
		})
	})
	r.Get("/plugins", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, s.src.Plugins.Snapshot())
	})
	r.Get("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if s.src.Ingest == nil {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "ingest disabled"})
			return
		}
		writeJSON(w, r, http.StatusOK, s.src.Ingest.Stats())
	})
	r.Get("/journal", s.handleJournal)
	return r
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.src.Journal == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "storage disabled"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "limit must be 1..1000"})
			return
		}
		limit = n
	}
	entries, err := s.src.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("journal read failed", logx.Err(err))
		writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "journal read failed"})
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status endpoint listening", logx.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	render.Status(r, code)
	render.JSON(w, r, v)
}
