package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cwbudde/algo-airharp/gesture"
	"github.com/cwbudde/algo-airharp/instrument"
	"github.com/cwbudde/algo-airharp/synth"
)

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	configs []synth.Config
	panicOn string
}

func (p *fakePlayer) PlayNote(name string) {
	if name == p.panicOn {
		panic("voice allocation failed")
	}
	p.mu.Lock()
	p.played = append(p.played, name)
	p.mu.Unlock()
}

func (p *fakePlayer) UpdateConfig(cfg synth.Config) {
	p.mu.Lock()
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()
}

type fakeRecorder struct {
	notes []string
	times []float64
}

func (r *fakeRecorder) NoteOn(name string, timeMs float64) {
	r.notes = append(r.notes, name)
	r.times = append(r.times, timeMs)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frame(ms float64, x float64) gesture.Frame {
	return gesture.Frame{TimestampMs: ms, Hands: []gesture.Hand{gesture.PointingHand(x, 0.5, true)}}
}

func pluckString0(t *testing.T, s *Session, start float64) []gesture.Trigger {
	t.Helper()
	if _, err := s.HandleFrame(frame(start, 0.05)); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	trs, err := s.HandleFrame(frame(start+16, 0.12))
	if err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	return trs
}

func TestNewPushesInstrumentConfig(t *testing.T) {
	p := &fakePlayer{}
	inst := instrument.Builtins()[2]
	New(p, 12, WithInstrument(inst), WithLogger(quietLogger()))
	if len(p.configs) != 1 || p.configs[0] != inst.Synth {
		t.Fatalf("configs = %+v", p.configs)
	}
}

func TestTriggerPlaysMappedNote(t *testing.T) {
	p := &fakePlayer{}
	rec := &fakeRecorder{}
	inst := instrument.State{Name: "t", Notes: []string{"G3", "A3"}, Synth: synth.DefaultConfig()}
	s := New(p, 12, WithInstrument(inst), WithRecorder(rec), WithLogger(quietLogger()))

	trs := pluckString0(t, s, 0)
	if len(trs) != 1 || trs[0].String != 0 {
		t.Fatalf("triggers = %+v", trs)
	}
	if len(p.played) != 1 || p.played[0] != "G3" {
		t.Fatalf("played = %v", p.played)
	}
	if len(rec.notes) != 1 || rec.notes[0] != "G3" || rec.times[0] != 16 {
		t.Fatalf("recorded = %v at %v", rec.notes, rec.times)
	}
	if st := s.Stats(); st.NotesPlayed != 1 || st.Frames != 2 || st.Tracker.Triggers != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStringIndexWrapsOverNotes(t *testing.T) {
	p := &fakePlayer{}
	inst := instrument.State{Name: "t", Notes: []string{"C4", "D4", "E4"}, Synth: synth.DefaultConfig()}
	s := New(p, 12, WithInstrument(inst), WithLogger(quietLogger()))

	s.HandleFrame(frame(0, 0.05))
	s.HandleFrame(frame(16, 0.99))
	want := []string{"C4", "D4", "E4", "C4", "D4", "E4", "C4", "D4", "E4", "C4", "D4", "E4"}
	if len(p.played) != len(want) {
		t.Fatalf("played = %v", p.played)
	}
	for i := range want {
		if p.played[i] != want[i] {
			t.Fatalf("played[%d] = %s, want %s", i, p.played[i], want[i])
		}
	}
}

func TestEmptyNoteListDropsTriggers(t *testing.T) {
	p := &fakePlayer{}
	inst := instrument.State{Name: "silent", Synth: synth.DefaultConfig()}
	s := New(p, 12, WithInstrument(inst), WithLogger(quietLogger()))
	if trs := pluckString0(t, s, 0); len(trs) != 1 {
		t.Fatalf("tracker should still trigger, got %v", trs)
	}
	if len(p.played) != 0 || s.Stats().Dropped != 1 {
		t.Fatalf("played=%v stats=%+v", p.played, s.Stats())
	}
}

func TestStopHaltsDispatchButKeepsTracking(t *testing.T) {
	p := &fakePlayer{}
	s := New(p, 12, WithLogger(quietLogger()))
	s.Stop()
	if !s.Stopped() {
		t.Fatalf("expected stopped")
	}
	pluckString0(t, s, 0)
	if len(p.played) != 0 {
		t.Fatalf("played while stopped: %v", p.played)
	}

	s.Start()
	pluckString0(t, s, 1000)
	if len(p.played) != 1 {
		t.Fatalf("expected dispatch after Start, played %v", p.played)
	}
}

func TestSetInstrumentOnlyTouchesConfig(t *testing.T) {
	p := &fakePlayer{}
	s := New(p, 12, WithLogger(quietLogger()))
	s.HandleFrame(frame(0, 0.05))

	next := instrument.Builtins()[1]
	s.SetInstrument(next)
	if got := p.configs[len(p.configs)-1]; got != next.Synth {
		t.Fatalf("config not forwarded: %+v", got)
	}
	// the finger track survives the switch
	trs, _ := s.HandleFrame(frame(16, 0.12))
	if len(trs) != 1 {
		t.Fatalf("expected a trigger across the instrument switch, got %v", trs)
	}
	if p.played[0] != next.Notes[0] {
		t.Fatalf("played %s, want %s", p.played[0], next.Notes[0])
	}
	if s.Instrument().ID != next.ID {
		t.Fatalf("instrument not replaced")
	}
}

func TestFaultIsRecoveredPerFrame(t *testing.T) {
	p := &fakePlayer{panicOn: "C4"}
	s := New(p, 12, WithLogger(quietLogger()))

	s.HandleFrame(frame(0, 0.05))
	_, err := s.HandleFrame(frame(16, 0.12))
	if !errors.Is(err, ErrFrameFault) {
		t.Fatalf("err = %v, want ErrFrameFault", err)
	}
	if s.Stats().Faults != 1 {
		t.Fatalf("fault not counted")
	}

	p.panicOn = ""
	trs := pluckString0(t, s, 1000)
	if len(trs) != 1 || len(p.played) != 1 {
		t.Fatalf("session unusable after fault: triggers=%v played=%v", trs, p.played)
	}
}

func TestConcurrentFrames(t *testing.T) {
	p := &fakePlayer{}
	s := New(p, 12, WithLogger(quietLogger()))
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.HandleFrame(frame(float64(g*1000+i*16), 0.05+0.9*float64(i%2)))
			}
		}(g)
	}
	wg.Wait()
	if got := s.Stats().Frames; got != 200 {
		t.Fatalf("frames = %d, want 200", got)
	}
}
