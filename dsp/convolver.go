package dsp

import (
	"fmt"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-airharp/internal/wavio"
)

// convBlock is the partition size of the overlap-add convolvers.
const convBlock = 128

// convChannel is one side of the stereo convolver with its block buffers.
type convChannel struct {
	ola *dspconv.StreamingOverlapAddT[float32, complex64]
	in  []float32
	out []float32
}

func newConvChannel(ir []float32) (*convChannel, error) {
	ola, err := dspconv.NewStreamingOverlapAdd32(ir, convBlock)
	if err != nil {
		return nil, err
	}
	return &convChannel{
		ola: ola,
		in:  make([]float32, convBlock),
		out: make([]float32, convBlock),
	}, nil
}

// RoomConvolver applies a room impulse response to interleaved stereo audio
// with partitioned overlap-add, mixing the result with the dry signal.
type RoomConvolver struct {
	sampleRate int
	irLen      int
	wet, dry   float32
	ch         [2]*convChannel
}

// NewRoomConvolver returns a fully wet convolver holding a unit impulse.
func NewRoomConvolver(sampleRate int) *RoomConvolver {
	c := &RoomConvolver{sampleRate: sampleRate, wet: 1}
	if err := c.SetIR([]float32{1}, nil); err != nil {
		panic(fmt.Sprintf("dsp: identity IR rejected: %v", err))
	}
	return c
}

// SetMix sets the wet and dry gains used by Process.
func (c *RoomConvolver) SetMix(wet, dry float32) {
	c.wet, c.dry = wet, dry
}

// SetIR installs left and right responses. An empty left response is a unit
// impulse and an empty right response reuses the left one.
func (c *RoomConvolver) SetIR(left, right []float32) error {
	if len(left) == 0 {
		left = []float32{1}
	}
	if len(right) == 0 {
		right = left
	}
	var chans [2]*convChannel
	for i, ir := range [2][]float32{left, right} {
		ch, err := newConvChannel(ir)
		if err != nil {
			return fmt.Errorf("channel %d IR: %w", i, err)
		}
		chans[i] = ch
	}
	c.ch = chans
	c.irLen = max(len(left), len(right))
	return nil
}

// SetIRFromWAV loads a mono or stereo response from path at the convolver's
// sample rate.
func (c *RoomConvolver) SetIRFromWAV(path string) error {
	chans, rate, err := wavio.ReadChannels(path)
	if err != nil {
		return err
	}
	irs := [2][]float32{chans[0], chans[0]}
	if len(chans) > 1 {
		irs[1] = chans[1]
	}
	for i := range irs {
		if irs[i], err = wavio.Resample32(irs[i], rate, c.sampleRate); err != nil {
			return err
		}
	}
	return c.SetIR(irs[0], irs[1])
}

// TailFrames is how long the response keeps ringing after the input stops.
func (c *RoomConvolver) TailFrames() int {
	return c.irLen
}

// Process convolves an interleaved stereo buffer into a new buffer of the
// same length. A block the convolver fails on passes through dry.
func (c *RoomConvolver) Process(input []float32) []float32 {
	frames := len(input) / 2
	output := make([]float32, frames*2)
	for start := 0; start < frames; start += convBlock {
		n := min(convBlock, frames-start)
		frame := input[start*2 : (start+n)*2]
		failed := false
		for side, ch := range c.ch {
			clear(ch.in)
			for i := 0; i < n; i++ {
				ch.in[i] = frame[i*2+side]
			}
			if err := ch.ola.ProcessBlockTo(ch.out, ch.in); err != nil {
				failed = true
			}
		}
		dst := output[start*2 : (start+n)*2]
		if failed {
			copy(dst, frame)
			continue
		}
		for i := 0; i < n; i++ {
			for side, ch := range c.ch {
				dst[i*2+side] = c.dry*frame[i*2+side] + c.wet*ch.out[i]
			}
		}
	}
	return output
}

// Reset clears the convolution history.
func (c *RoomConvolver) Reset() {
	for _, ch := range c.ch {
		ch.ola.Reset()
	}
}
