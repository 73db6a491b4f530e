// Package midirec captures played notes as a Standard MIDI File.
package midirec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cwbudde/algo-airharp/notes"
)

const (
	DefaultTempo      = 120.0
	DefaultVelocity   = 100
	DefaultNoteLength = 250 * time.Millisecond
	fallbackKey       = 69
)

type noteEvent struct {
	key    uint8
	timeMs float64
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithTempo(bpm float64) Option          { return func(r *Recorder) { r.bpm = bpm } }
func WithChannel(ch uint8) Option           { return func(r *Recorder) { r.channel = ch & 0x0f } }
func WithVelocity(v uint8) Option           { return func(r *Recorder) { r.velocity = v & 0x7f } }
func WithNoteLength(d time.Duration) Option { return func(r *Recorder) { r.noteLen = d } }

// Recorder collects note starts and renders them as one MIDI track. Time is
// relative to the first recorded note.
type Recorder struct {
	mu       sync.Mutex
	bpm      float64
	ticks    smf.MetricTicks
	channel  uint8
	velocity uint8
	noteLen  time.Duration
	events   []noteEvent
}

// New creates an empty recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		bpm:      DefaultTempo,
		ticks:    smf.MetricTicks(960),
		velocity: DefaultVelocity,
		noteLen:  DefaultNoteLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NoteOn records a note start. Unknown names are recorded as A4, the pitch
// the synth plays for them.
func (r *Recorder) NoteOn(name string, timeMs float64) {
	key, ok := notes.MIDI(name)
	if !ok {
		key = fallbackKey
	}
	r.mu.Lock()
	r.events = append(r.events, noteEvent{key: uint8(key), timeMs: timeMs})
	r.mu.Unlock()
}

// Len is the number of recorded notes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type tickMsg struct {
	tick uint64
	on   bool
	msg  midi.Message
}

// SMF builds a single-track file from the notes recorded so far.
func (r *Recorder) SMF() *smf.SMF {
	r.mu.Lock()
	events := append([]noteEvent(nil), r.events...)
	r.mu.Unlock()

	s := smf.New()
	s.TimeFormat = r.ticks

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("airharp"))
	tr.Add(0, smf.MetaTempo(r.bpm))

	if len(events) > 0 {
		origin := events[0].timeMs
		for _, e := range events {
			origin = min(origin, e.timeMs)
		}
		length := uint64(r.ticks.Ticks(r.bpm, r.noteLen))
		msgs := make([]tickMsg, 0, len(events)*2)
		for _, e := range events {
			at := uint64(r.ticks.Ticks(r.bpm, time.Duration((e.timeMs-origin)*float64(time.Millisecond))))
			msgs = append(msgs,
				tickMsg{tick: at, on: true, msg: midi.NoteOn(r.channel, e.key, r.velocity)},
				tickMsg{tick: at + length, msg: midi.NoteOff(r.channel, e.key)},
			)
		}
		// note-offs go first on a shared tick so a repeated key retriggers
		sort.SliceStable(msgs, func(i, j int) bool {
			if msgs[i].tick != msgs[j].tick {
				return msgs[i].tick < msgs[j].tick
			}
			return !msgs[i].on && msgs[j].on
		})
		var last uint64
		for _, m := range msgs {
			tr.Add(uint32(m.tick-last), m.msg)
			last = m.tick
		}
	}
	tr.Close(0)
	_ = s.Add(tr)
	return s
}

// WriteTo writes the file to w.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	return r.SMF().WriteTo(w)
}

// WriteFile writes the file to path, creating parent directories.
func (r *Recorder) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := r.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write midi: %w", err)
	}
	return f.Close()
}
