// Package server implements the reference robot backend: the /robots HTTP
// API, the /admin control plane, and the middleware chain shared by both.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/retreat896/MobileDev-Assignment02/internal/store"
)

// DefaultPort is the port robotd listens on when neither --port nor PORT is set.
const DefaultPort = 8082

// Config holds the backend configuration, parsed from CLI flags.
type Config struct {
	Port     int
	Latency  time.Duration
	FailRate float64
	SeedFile string
	MySQLDSN string
	Verbose  bool
}

// ParseFlags parses robotd's flags from args (without the program name).
// PORT and MYSQL_DSN fill in flags that were not given.
func ParseFlags(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("robotd", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", 0, "HTTP listen port (default: $PORT or 8082)")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	fs.StringVar(&cfg.SeedFile, "seed-file", "", "Path to JSON state for initial robots")
	fs.StringVar(&cfg.MySQLDSN, "mysql-dsn", "", "MySQL DSN; in-memory storage when empty (default: $MYSQL_DSN)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable request/response logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", p, err)
			}
			cfg.Port = port
		}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MySQLDSN == "" {
		cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return nil, fmt.Errorf("fail-rate must be between 0.0 and 1.0")
	}
	if cfg.Latency < 0 {
		return nil, fmt.Errorf("latency must not be negative")
	}
	return cfg, nil
}

// NewLogger returns the JSON stdout logger robotd uses.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Server is the robot backend. It wraps a chi router with the common
// middleware and serves robots out of a store.Repository.
type Server struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	repo   store.Repository
	mw     *Middleware
}

// New builds a Server over repo. A nil logger discards output.
func New(cfg *Config, repo store.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger)

	// Latency and failure middleware are always mounted so runtime
	// changes through /admin/config apply immediately.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.CORS)
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	s := &Server{
		Config: cfg,
		Router: r,
		Logger: logger,
		repo:   repo,
		mw:     mw,
	}

	r.Route("/robots", func(r chi.Router) {
		r.Use(mw.FaultInjection)
		r.Get("/", s.handleListRobots)
		r.Post("/", s.handleCreateRobot)
		r.Get("/{id}", s.handleGetRobot)
		r.Put("/{id}", s.handleUpdateRobot)
		r.Delete("/{id}", s.handleDeleteRobot)
	})
	newAdmin(s).Routes(r)

	return s
}

// Middleware returns the middleware instance (request log, fault registry).
func (s *Server) Middleware() *Middleware {
	return s.mw
}

// Serve listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Config.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("starting robot backend", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.Logger.Info("shutting down robot backend")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler so Server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a {"detail": ...} error response.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}
