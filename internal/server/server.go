package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/playperu/buzzer/internal/broadcast"
	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/handler/health"
)

// SessionStore is the buzzer session the handlers drive.
type SessionStore interface {
	State() buzzer.Session
	Create() buzzer.Session
	Join(team buzzer.Team, name string) (buzzer.Player, error)
	Leave(playerID string) bool
	StartAccepting() buzzer.Session
	StopAccepting() buzzer.Session
	Reset() buzzer.Session
	Buzz(playerID string) buzzer.BuzzResult
}

// ViewerHub hands out viewer queues for the live transports.
type ViewerHub interface {
	Attach() *broadcast.Viewer
	Detach(v *broadcast.Viewer)
}

// RoundLister reads the round archive.
type RoundLister interface {
	List(ctx context.Context, limit int) ([]buzzer.Round, error)
}

type Deps struct {
	Store SessionStore
	Hub   ViewerHub

	// Rounds is nil when the archive is disabled.
	Rounds RoundLister

	Gatherer prometheus.Gatherer
	Checks   map[string]health.Checker

	SPADir    string
	PublicURL string

	// Per client IP budget for join and leave.
	JoinLimit  int
	JoinWindow time.Duration
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newRouter(logger, deps),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(logger *slog.Logger, deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, deps)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections. Live event streams end when their
// viewers are detached by the hub, so callers close the hub first.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
