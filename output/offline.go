package output

import (
	"context"
	"sync"

	"github.com/cwbudde/algo-airharp/synth"
)

// Offline is an output with no device: the caller pulls frames.
type Offline struct {
	mu       sync.Mutex
	rate     int
	renderer synth.Renderer
	closed   bool
}

func NewOffline(sampleRate int) *Offline {
	return &Offline{rate: sampleRate}
}

func (o *Offline) SampleRate() int                  { return o.rate }
func (o *Offline) Suspended() bool                  { return false }
func (o *Offline) Resume(ctx context.Context) error { return ctx.Err() }

func (o *Offline) Attach(r synth.Renderer) {
	o.mu.Lock()
	o.renderer = r
	o.mu.Unlock()
}

func (o *Offline) Close() error {
	o.mu.Lock()
	o.closed = true
	o.renderer = nil
	o.mu.Unlock()
	return nil
}

// Pull renders the next frames of interleaved stereo. Without an attached
// renderer, or after Close, it returns silence.
func (o *Offline) Pull(frames int) []float32 {
	out := make([]float32, frames*2)
	o.mu.Lock()
	r := o.renderer
	o.mu.Unlock()
	if r != nil {
		r.Render(out)
	}
	return out
}

// Closed reports whether Close was called.
func (o *Offline) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
