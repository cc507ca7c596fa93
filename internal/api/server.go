// Package api serves the operator and player HTTP API and the live event
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/catalog"
	"github.com/AaronLay10/StrideQuest/internal/events"
	"github.com/AaronLay10/StrideQuest/internal/mission"
	"github.com/AaronLay10/StrideQuest/internal/orchestrator"
	"github.com/AaronLay10/StrideQuest/internal/storage/postgres"
)

// Engine is the mission controller as seen by the API.
type Engine interface {
	Load(g *mission.Graph, spec orchestrator.RunSpec) error
	SelectChoice(choiceID string) (bool, error)
	EndMission(now time.Time) error
	Reset() error
	State() orchestrator.State
	Stats() orchestrator.Stats
	Narrative() []string
	FitnessStatistics() []string
	Route() []string
	CurrentChoices() (momentID, description string, choices []mission.Choice)
}

// Catalog lists and resolves mission documents.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Entry, error)
	Path(file string) (string, error)
}

// History returns stored run summaries and their event logs.
type History interface {
	Summaries(ctx context.Context, limit int) ([]postgres.SummaryRow, error)
	SessionEvents(ctx context.Context, sessionID string, limit int) ([]postgres.EventRow, error)
}

// Probe reports whether a dependency is up.
type Probe func() bool

// Probes feed /ready and /metrics. A nil probe means the dependency is not
// configured and does not gate readiness.
type Probes struct {
	Sensors  Probe
	Speech   Probe
	MQTT     Probe
	Postgres Probe
}

// Options wires a Server.
type Options struct {
	Engine      Engine
	Catalog     Catalog
	History     History
	RunDefaults orchestrator.RunSpec
	Probes      Probes
	EngineID    string
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server routes API requests to the engine.
type Server struct {
	opts    Options
	log     *slog.Logger
	now     func() time.Time
	started time.Time
	mux     *http.ServeMux
}

// New builds a server and its routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		opts:    opts,
		log:     log.With("component", "api"),
		now:     now,
		started: now(),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /ready", s.readyHandler)
	s.mux.HandleFunc("GET /events", s.eventsHandler)
	s.mux.HandleFunc("GET /missions", s.missionsHandler)
	s.mux.HandleFunc("GET /mission/status", s.statusHandler)
	s.mux.HandleFunc("GET /mission/narrative", s.narrativeHandler)
	s.mux.HandleFunc("GET /history", s.historyHandler)
	s.mux.HandleFunc("POST /mission/load", RequireAnyRole(s.loadHandler))
	s.mux.HandleFunc("POST /mission/choice", RequireAnyRole(s.choiceHandler))
	s.mux.HandleFunc("POST /mission/end", RequireAnyRole(s.endHandler))
	s.mux.HandleFunc("POST /mission/reset", RequireAnyRole(s.resetHandler))
	s.mux.HandleFunc("GET /history/{session}/events", s.sessionEventsHandler)
	s.mux.HandleFunc("GET /ws/events", wsEventsHandler)
	s.mux.HandleFunc("GET /metrics", s.metricsHandler)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OperatorResponse is the body of every POST endpoint.
type OperatorResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Selected *bool  `json:"selected,omitempty"`
	Session  string `json:"session_id,omitempty"`
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, OperatorResponse{Error: msg})
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "stridequest",
		Hostname:  host,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
}

// ReadinessResponse reports each dependency. Unconfigured ones are omitted.
type ReadinessResponse struct {
	Ready    bool   `json:"ready"`
	State    string `json:"state"`
	Sensors  *bool  `json:"sensors,omitempty"`
	Speech   *bool  `json:"speech,omitempty"`
	MQTT     *bool  `json:"mqtt,omitempty"`
	Postgres *bool  `json:"postgres,omitempty"`
}

func probe(p Probe) *bool {
	if p == nil {
		return nil
	}
	v := p()
	return &v
}

func (s *Server) readiness() ReadinessResponse {
	p := s.opts.Probes
	resp := ReadinessResponse{
		State:    string(s.opts.Engine.State()),
		Sensors:  probe(p.Sensors),
		Speech:   probe(p.Speech),
		MQTT:     probe(p.MQTT),
		Postgres: probe(p.Postgres),
	}
	resp.Ready = true
	for _, v := range []*bool{resp.Sensors, resp.Speech, resp.MQTT, resp.Postgres} {
		if v != nil && !*v {
			resp.Ready = false
		}
	}
	return resp
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := s.readiness()
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

func (s *Server) missionsHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.Catalog.List(r.Context())
	if err != nil {
		s.log.Error("mission catalog unavailable", "error", err)
		fail(w, http.StatusInternalServerError, "mission catalog unavailable")
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// LoadRequest names a catalog document and optional run parameters.
type LoadRequest struct {
	File            string   `json:"file"`
	MissionMinutes  *float64 `json:"mission_minutes,omitempty"`
	IntervalMinutes *float64 `json:"interval_minutes,omitempty"`
	ChallengePace   *float32 `json:"challenge_pace,omitempty"`
}

func (req LoadRequest) spec(defaults orchestrator.RunSpec) (orchestrator.RunSpec, error) {
	spec := defaults
	if req.MissionMinutes != nil {
		d, err := requestMinutes("mission_minutes", *req.MissionMinutes)
		if err != nil {
			return spec, err
		}
		spec.MissionLength = d
	}
	if req.IntervalMinutes != nil {
		d, err := requestMinutes("interval_minutes", *req.IntervalMinutes)
		if err != nil {
			return spec, err
		}
		spec.IntervalLength = d
	}
	if req.ChallengePace != nil {
		spec.ChallengePace = *req.ChallengePace
	}
	return spec, nil
}

// requestMinutes converts a minute count, rejecting values no time.Duration can hold.
func requestMinutes(field string, v float64) (time.Duration, error) {
	if math.Abs(v) >= mission.MaxMinutes {
		return 0, fmt.Errorf("%s %g out of range", field, v)
	}
	return time.Duration(v * float64(time.Minute)), nil
}

func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.File == "" {
		fail(w, http.StatusBadRequest, "file required")
		return
	}

	spec, err := req.spec(s.opts.RunDefaults)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := s.opts.Catalog.Path(req.File)
	if err != nil {
		fail(w, http.StatusNotFound, err.Error())
		return
	}
	g, err := orchestrator.LoadMissionFile(path)
	if err != nil {
		events.Emit("error", "mission.load_failed", err.Error(), map[string]interface{}{"file": req.File})
		fail(w, loadStatus(err), err.Error())
		return
	}
	if err := s.opts.Engine.Load(g, spec); err != nil {
		fail(w, loadStatus(err), err.Error())
		return
	}

	events.Emit("info", "operator.load", "", map[string]interface{}{"file": req.File, "mission": g.Name})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Session: s.opts.Engine.Stats().SessionID})
}

func loadStatus(err error) int {
	var parseErr *mission.ParseError
	var linkErr *orchestrator.LinkError
	var readErr *orchestrator.ReadError
	switch {
	case errors.Is(err, orchestrator.ErrTransitionRejected):
		return http.StatusConflict
	case errors.As(err, &parseErr), errors.As(err, &linkErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &readErr):
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// StatusResponse is the current run state plus any offered choices.
type StatusResponse struct {
	orchestrator.Stats
	Choice *ChoiceView `json:"choice,omitempty"`
}

// ChoiceView is an offered choice moment.
type ChoiceView struct {
	MomentID    string         `json:"moment_id"`
	Description string         `json:"description"`
	Choices     []ChoiceOption `json:"choices"`
}

type ChoiceOption struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Stats: s.opts.Engine.Stats()}
	if id, desc, choices := s.opts.Engine.CurrentChoices(); id != "" {
		view := &ChoiceView{MomentID: id, Description: desc, Choices: []ChoiceOption{}}
		for _, c := range choices {
			view.Choices = append(view.Choices, ChoiceOption{ID: c.ID, Description: c.Description, Icon: c.IconName})
		}
		resp.Choice = view
	}
	writeJSON(w, http.StatusOK, resp)
}

// NarrativeResponse is the end-screen summary.
type NarrativeResponse struct {
	Narrative         []string `json:"narrative"`
	FitnessStatistics []string `json:"fitness_statistics"`
	Route             []string `json:"route"`
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) narrativeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NarrativeResponse{
		Narrative:         orEmpty(s.opts.Engine.Narrative()),
		FitnessStatistics: orEmpty(s.opts.Engine.FitnessStatistics()),
		Route:             orEmpty(s.opts.Engine.Route()),
	})
}

type ChoiceRequest struct {
	ChoiceID string `json:"choice_id"`
}

func (s *Server) choiceHandler(w http.ResponseWriter, r *http.Request) {
	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ChoiceID == "" {
		fail(w, http.StatusBadRequest, "choice_id required")
		return
	}

	selected, err := s.opts.Engine.SelectChoice(req.ChoiceID)
	if err != nil {
		fail(w, choiceStatus(err), err.Error())
		return
	}
	events.Emit("info", "operator.choice", "", map[string]interface{}{
		"choice_id": req.ChoiceID,
		"selected":  selected,
	})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Selected: &selected})
}

func choiceStatus(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNotRunning),
		errors.Is(err, mission.ErrNotChoiceMoment),
		errors.Is(err, mission.ErrMomentNotActive):
		return http.StatusConflict
	case errors.Is(err, mission.ErrUnknownChoice):
		return http.StatusNotFound
	case errors.Is(err, mission.ErrChoiceUnavailable):
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func (s *Server) endHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Engine.EndMission(s.now()); err != nil {
		fail(w, http.StatusConflict, err.Error())
		return
	}
	events.Emit("info", "operator.end", "", nil)
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Engine.Reset(); err != nil {
		fail(w, http.StatusConflict, err.Error())
		return
	}
	events.Emit("info", "operator.reset", "", nil)
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		fail(w, http.StatusNotFound, "history is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.opts.History.Summaries(r.Context(), limit)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		fail(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if rows == nil {
		rows = []postgres.SummaryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) sessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		fail(w, http.StatusNotFound, "history is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.opts.History.SessionEvents(r.Context(), r.PathValue("session"), limit)
	if err != nil {
		s.log.Error("session events query failed", "session", r.PathValue("session"), "error", err)
		fail(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if len(rows) == 0 {
		fail(w, http.StatusNotFound, "no events for session")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListenAndServe serves on port until ctx is cancelled. TLS is used when
// InitTLS found a certificate pair.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tc, err := LoadTLSConfig()
	if err != nil {
		s.log.Error("tls disabled, serving plain http", "error", err)
		tc = nil
	}

	errCh := make(chan error, 1)
	go func() {
		if tc != nil {
			srv.TLSConfig = tc
			s.log.Info("api listening", "addr", srv.Addr, "tls", true)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		s.log.Info("api listening", "addr", srv.Addr, "tls", false)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.CloseAllSubscribers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
