// Package output provides the sinks the synth engine renders into.
package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/cwbudde/algo-airharp/synth"
)

// DefaultBuffer is the device buffer length.
const DefaultBuffer = 20 * time.Millisecond

// ErrSpeakerClosed is returned by Resume after Close.
var ErrSpeakerClosed = errors.New("output: speaker closed")

// Speaker plays the engine on the default audio device. It starts suspended.
// The first Resume opens the device; later ones resume a Suspend.
type Speaker struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	buffer     time.Duration
	opened     bool
	suspended  bool
	closed     bool
	streamer   *Streamer
}

// NewSpeaker creates a suspended speaker output.
func NewSpeaker(sampleRate int, buffer time.Duration) *Speaker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Speaker{
		sampleRate: beep.SampleRate(sampleRate),
		buffer:     buffer,
		suspended:  true,
	}
}

func (s *Speaker) SampleRate() int {
	return int(s.sampleRate)
}

func (s *Speaker) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Resume opens the device, or resumes it after Suspend.
func (s *Speaker) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSpeakerClosed
	case !s.suspended:
		return nil
	case !s.opened:
		if err := speaker.Init(s.sampleRate, s.sampleRate.N(s.buffer)); err != nil {
			return fmt.Errorf("speaker init: %w", err)
		}
		s.opened = true
	default:
		if err := speaker.Resume(); err != nil {
			return err
		}
	}
	s.suspended = false
	return nil
}

// Suspend pauses the device without closing it.
func (s *Speaker) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened || s.suspended || s.closed {
		return nil
	}
	if err := speaker.Suspend(); err != nil {
		return err
	}
	s.suspended = true
	return nil
}

// Attach starts streaming r to the device.
func (s *Speaker) Attach(r synth.Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamer = NewStreamer(r)
	speaker.Play(s.streamer)
}

// Close stops playback and releases the player. beep keeps its driver
// context for the life of the process, so a closed Speaker cannot reopen.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.suspended = true
	if s.opened {
		speaker.Close()
	}
	return nil
}

// Streamer adapts a synth.Renderer to beep.Streamer. It never drains.
type Streamer struct {
	r   synth.Renderer
	buf []float32
}

var _ beep.Streamer = (*Streamer)(nil)

// NewStreamer wraps r.
func NewStreamer(r synth.Renderer) *Streamer {
	return &Streamer{r: r}
}

func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	n = len(samples)
	if cap(s.buf) < n*2 {
		s.buf = make([]float32, n*2)
	}
	buf := s.buf[:n*2]
	s.r.Render(buf)
	for i := range samples {
		samples[i][0] = float64(buf[2*i])
		samples[i][1] = float64(buf[2*i+1])
	}
	return n, true
}

func (s *Streamer) Err() error {
	return nil
}
