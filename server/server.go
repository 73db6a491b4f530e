// Package server exposes a session over HTTP so an external landmark
// detector (typically a browser) can drive the instrument.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/cwbudde/algo-airharp/gesture"
	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/preset"
	"github.com/cwbudde/algo-airharp/session"
	"github.com/cwbudde/algo-airharp/synth"
)

// DefaultDebounce coalesces bursts of instrument edits.
const DefaultDebounce = 150 * time.Millisecond

const maxBodyBytes = 1 << 20

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithPresets sets the selectable presets.
func WithPresets(list []instrument.State) Option {
	return func(s *Server) { s.presets = append([]instrument.State(nil), list...) }
}

// WithPresetDir makes created presets persist as JSON files in dir.
func WithPresetDir(dir string) Option {
	return func(s *Server) { s.presetDir = dir }
}

// WithEngineStats adds engine counters to /api/stats.
func WithEngineStats(fn func() synth.Stats) Option {
	return func(s *Server) { s.engineStats = fn }
}

func WithDebounce(d time.Duration) Option {
	return func(s *Server) { s.debounceFor = d }
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server routes HTTP requests to a session.
type Server struct {
	sess        *session.Session
	engineStats func() synth.Stats
	log         *slog.Logger
	presetDir   string
	origins     []string
	debounceFor time.Duration

	mu      sync.Mutex
	presets []instrument.State
	pending *instrument.State
	applied uint64

	debounced func(func())
	handler   http.Handler
}

// New builds the server and its routes.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		sess:        sess,
		log:         slog.Default(),
		debounceFor: DefaultDebounce,
		origins:     []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.presets) == 0 {
		s.presets = instrument.Builtins()
	}
	s.debounced = debounce.New(s.debounceFor)

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/frames", s.handleFrame).Methods(http.MethodPost)
	r.HandleFunc("/api/instrument", s.handleGetInstrument).Methods(http.MethodGet)
	r.HandleFunc("/api/instrument", s.handlePutInstrument).Methods(http.MethodPut)
	r.HandleFunc("/api/presets", s.handleListPresets).Methods(http.MethodGet)
	r.HandleFunc("/api/presets", s.handleCreatePreset).Methods(http.MethodPost)
	r.HandleFunc("/api/presets/{id}/select", s.handleSelectPreset).Methods(http.MethodPost)
	r.HandleFunc("/api/session/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/session/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
	return s
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// applies any pending instrument edit.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Flush()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Flush applies a pending instrument edit now. It holds mu while applying
// so a preset selected concurrently always lands after the edit.
func (s *Server) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pending
	if st == nil {
		return
	}
	s.pending = nil
	s.applied++
	s.sess.SetInstrument(*st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type frameResponse struct {
	Triggers []gesture.Trigger `json:"triggers"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var f gesture.Frame
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	trs, err := s.sess.HandleFrame(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trs == nil {
		trs = []gesture.Trigger{}
	}
	writeJSON(w, http.StatusOK, frameResponse{Triggers: trs})
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending != nil {
		writeJSON(w, http.StatusOK, pending)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Instrument())
}

// handlePutInstrument applies a partial preset over the current (or
// pending) instrument. The result reaches the engine after the debounce
// window.
func (s *Server) handlePutInstrument(w http.ResponseWriter, r *http.Request) {
	var f preset.File
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	base := s.sess.Instrument()
	if s.pending != nil {
		base = s.pending.Clone()
	}
	if err := preset.ApplyFile(&base, &f); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.pending = &base
	s.mu.Unlock()

	s.debounced(s.Flush)
	writeJSON(w, http.StatusAccepted, base)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := append([]instrument.State(nil), s.presets...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var f preset.File
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// ids name files in the preset directory, so only the server mints them
	f.ID = ""
	st := preset.Template()
	st.ID = instrument.NewID()
	if err := preset.ApplyFile(&st, &f); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presetDir != "" {
		path := filepath.Join(s.presetDir, st.ID+".json")
		if err := preset.SaveJSON(path, st); err != nil {
			s.log.Error("save preset", "path", path, "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.presets = append(s.presets, st)
	s.log.Info("preset created", "id", st.ID, "name", st.Name)
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	st, ok := instrument.Find(s.presets, id)
	if ok {
		s.pending = nil
		s.sess.SetInstrument(st)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown preset %q", id))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sess.Stop()
	writeJSON(w, http.StatusOK, s.sess.Stats())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sess.Start()
	writeJSON(w, http.StatusOK, s.sess.Stats())
}

type statsResponse struct {
	Session        session.Stats `json:"session"`
	Engine         *synth.Stats  `json:"engine,omitempty"`
	AppliedUpdates uint64        `json:"applied_updates"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Session: s.sess.Stats()}
	if s.engineStats != nil {
		es := s.engineStats()
		resp.Engine = &es
	}
	s.mu.Lock()
	resp.AppliedUpdates = s.applied
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}
