package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

// State is the full robot collection as exchanged over /admin/state and in
// seed files.
type State struct {
	Robots map[string]robots.Robot `json:"robots"`
}

// Snapshot returns every stored robot keyed by ID.
func (s *Server) Snapshot(ctx context.Context) (State, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return State{}, err
	}
	st := State{Robots: make(map[string]robots.Robot, len(all))}
	for _, r := range all {
		st.Robots[r.ID.String()] = r
	}
	return st, nil
}

// LoadState replaces every robot with the ones in data, a JSON State.
// Each robot must pass the same checks as a create request.
func (s *Server) LoadState(ctx context.Context, data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parsing state: %w", err)
	}
	if st.Robots == nil {
		return fmt.Errorf(`state has no "robots" object`)
	}
	for id, r := range st.Robots {
		d := robots.Draft{Name: r.Name, Description: r.Description, Price: r.Price, ImageURL: r.ImageURL}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("robot %s: %w", id, err)
		}
	}
	return s.repo.Replace(ctx, st.Robots)
}

// LoadSeedFile loads State from the configured seed file, if any.
func (s *Server) LoadSeedFile(ctx context.Context) error {
	if s.Config.SeedFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.Config.SeedFile)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	if err := s.LoadState(ctx, data); err != nil {
		return fmt.Errorf("loading seed file %s: %w", s.Config.SeedFile, err)
	}
	return nil
}

// Reset clears robots, the request log, and all faults, then reloads the
// seed file when one is configured.
func (s *Server) Reset(ctx context.Context) error {
	if err := s.repo.Reset(ctx); err != nil {
		return err
	}
	s.mw.ReqLog.Clear()
	s.mw.Faults.Reset()
	return s.LoadSeedFile(ctx)
}

// admin serves the /admin control plane.
type admin struct {
	srv *Server
}

func newAdmin(srv *Server) *admin {
	return &admin{srv: srv}
}

// Routes mounts the admin endpoints on r.
func (a *admin) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", a.handleReset)
		r.Get("/state", a.handleGetState)
		r.Post("/state", a.handleLoadState)
		r.Post("/fault/*", a.handleInjectFault)
		r.Delete("/fault/*", a.handleRemoveFault)
		r.Get("/faults", a.handleListFaults)
		r.Get("/requests", a.handleGetRequests)
		r.Get("/config", a.handleGetConfig)
		r.Post("/config", a.handleUpdateConfig)
		r.Get("/health", a.handleHealth)
	})
}

func (a *admin) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.Reset(r.Context()); err != nil {
		a.srv.storeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (a *admin) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := a.srv.Snapshot(r.Context())
	if err != nil {
		a.srv.storeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (a *admin) handleLoadState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if err := a.srv.LoadState(r.Context(), body); err != nil {
		Error(w, http.StatusBadRequest, "failed to load state: "+err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func faultPath(r *http.Request) string {
	return "/" + chi.URLParam(r, "*")
}

func (a *admin) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)

	var fault FaultConfig
	if err := decodeBody(w, r, &fault); err != nil {
		Error(w, http.StatusBadRequest, "invalid fault config: "+err.Error())
		return
	}
	if fault.Rate < 0 || fault.Rate > 1 || fault.DelayMS < 0 {
		Error(w, http.StatusBadRequest, "rate must be 0.0-1.0 and delay_ms non-negative")
		return
	}
	a.srv.mw.Faults.Set(endpoint, fault)
	JSON(w, http.StatusOK, map[string]any{
		"status":   "injected",
		"endpoint": endpoint,
		"fault":    fault,
	})
}

func (a *admin) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)
	if a.srv.mw.Faults.Remove(endpoint) {
		JSON(w, http.StatusOK, map[string]any{"status": "removed", "endpoint": endpoint})
		return
	}
	Error(w, http.StatusNotFound, "no fault registered for "+endpoint)
}

func (a *admin) handleListFaults(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, a.srv.mw.Faults.All())
}

func (a *admin) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, a.srv.mw.ReqLog.Entries())
}

type configView struct {
	Port     int     `json:"port"`
	Storage  string  `json:"storage"`
	Latency  string  `json:"latency"`
	FailRate float64 `json:"fail_rate"`
	Verbose  bool    `json:"verbose"`
}

func (a *admin) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	set := a.srv.mw.Settings()
	storage := "memory"
	if a.srv.Config.MySQLDSN != "" {
		storage = "mysql"
	}
	JSON(w, http.StatusOK, configView{
		Port:     a.srv.Config.Port,
		Storage:  storage,
		Latency:  set.Latency.String(),
		FailRate: set.FailRate,
		Verbose:  set.Verbose,
	})
}

// handleUpdateConfig changes latency, fail_rate, or verbose at runtime. All
// fields are validated before any is applied.
func (a *admin) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latency  *string  `json:"latency"`
		FailRate *float64 `json:"fail_rate"`
		Verbose  *bool    `json:"verbose"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}

	set := a.srv.mw.Settings()
	if req.Latency != nil {
		d, err := time.ParseDuration(*req.Latency)
		if err != nil || d < 0 {
			Error(w, http.StatusBadRequest, "latency must be a non-negative duration")
			return
		}
		set.Latency = d
	}
	if req.FailRate != nil {
		if *req.FailRate < 0 || *req.FailRate > 1 {
			Error(w, http.StatusBadRequest, "fail_rate must be between 0.0 and 1.0")
			return
		}
		set.FailRate = *req.FailRate
	}
	if req.Verbose != nil {
		set.Verbose = *req.Verbose
	}
	a.srv.mw.Apply(set)
	a.handleGetConfig(w, r)
}

func (a *admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
