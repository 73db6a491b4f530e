// Package session drives the instrument: landmark frames in, notes out.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/algo-airharp/gesture"
	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/synth"
)

// ErrFrameFault is returned for a frame whose processing panicked.
var ErrFrameFault = errors.New("session: frame processing failed")

// Player is the audio side of a session.
type Player interface {
	PlayNote(name string)
	UpdateConfig(cfg synth.Config)
}

// Recorder receives every dispatched note.
type Recorder interface {
	NoteOn(name string, timeMs float64)
}

// Stats are session counters.
type Stats struct {
	Frames      uint64        `json:"frames"`
	NotesPlayed uint64        `json:"notes_played"`
	Dropped     uint64        `json:"dropped"`
	Faults      uint64        `json:"faults"`
	Stopped     bool          `json:"stopped"`
	Tracker     gesture.Stats `json:"tracker"`
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithInstrument sets the starting instrument.
func WithInstrument(st instrument.State) Option {
	return func(s *Session) { s.inst = st.Clone() }
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// Session runs the tracker and note dispatch under one lock, so frames may
// arrive from any goroutine.
type Session struct {
	mu       sync.Mutex
	tracker  *gesture.Tracker
	player   Player
	recorder Recorder
	inst     instrument.State
	stopped  bool
	stats    Stats
	log      *slog.Logger
}

// New creates a session over numStrings strings. The player receives the
// starting instrument's config.
func New(player Player, numStrings int, opts ...Option) *Session {
	s := &Session{
		player: player,
		inst:   instrument.Default(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = gesture.NewTracker(numStrings, gesture.WithTriggerFunc(s.dispatch))
	player.UpdateConfig(s.inst.Synth)
	return s
}

// HandleFrame runs one frame through the tracker and plays the resulting
// notes. A panic inside the frame is recovered and reported as an error;
// the session stays usable.
func (s *Session) HandleFrame(f gesture.Frame) (triggers []gesture.Trigger, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.stats.Faults++
			s.log.Error("frame fault", "timestamp_ms", f.TimestampMs, "panic", r)
			triggers = nil
			err = fmt.Errorf("%w at %.1fms: %v", ErrFrameFault, f.TimestampMs, r)
		}
	}()

	s.stats.Frames++
	skipped := s.tracker.Stats().HandsSkipped
	triggers = s.tracker.ProcessFrame(f)
	if n := s.tracker.Stats().HandsSkipped - skipped; n > 0 {
		s.log.Debug("skipped malformed hands", "count", n, "timestamp_ms", f.TimestampMs)
	}
	return triggers, nil
}

// dispatch runs inside HandleFrame with the lock held.
func (s *Session) dispatch(tr gesture.Trigger) {
	if s.stopped {
		s.stats.Dropped++
		return
	}
	note, ok := s.inst.NoteFor(tr.String)
	if !ok {
		s.stats.Dropped++
		return
	}
	s.player.PlayNote(note)
	s.stats.NotesPlayed++
	if s.recorder != nil {
		s.recorder.NoteOn(note, tr.TimeMs)
	}
	s.log.Debug("pluck", "string", tr.String, "note", note, "hand", tr.Hand, "finger", tr.Finger)
}

// SetInstrument replaces the active instrument. Only the player's config is
// touched; finger tracking carries on.
func (s *Session) SetInstrument(st instrument.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inst = st.Clone()
	s.player.UpdateConfig(s.inst.Synth)
	s.log.Info("instrument selected", "id", st.ID, "name", st.Name)
}

// Instrument returns the active instrument.
func (s *Session) Instrument() instrument.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst.Clone()
}

// Stop stops dispatching notes. Sounding voices finish on their own.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		s.log.Info("session stopped")
	}
}

// Start resumes dispatching after Stop.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}

// Stopped reports whether dispatch is stopped.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// NumStrings returns the tracker's string count.
func (s *Session) NumStrings() int {
	return s.tracker.NumStrings()
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Stopped = s.stopped
	st.Tracker = s.tracker.Stats()
	return st
}
