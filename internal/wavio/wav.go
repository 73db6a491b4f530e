// Package wavio reads and writes the WAV files the command line tools
// exchange: rendered performances, single plucks, room responses and fit
// references. Interleaved stereo float32 is the in-memory format.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// pcmBits is the bit depth of every file written by this package.
const pcmBits = 16

var errEmpty = errors.New("no audio frames")

// ReadChannels decodes path into one float32 slice per channel.
func ReadChannels(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a wav file", path)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	if pcm == nil || pcm.Format == nil {
		return nil, 0, fmt.Errorf("%s: missing format", path)
	}
	rate, nch := pcm.Format.SampleRate, pcm.Format.NumChannels
	switch {
	case nch < 1:
		return nil, 0, fmt.Errorf("%s: %d channels", path, nch)
	case rate <= 0:
		return nil, 0, fmt.Errorf("%s: sample rate %d", path, rate)
	case len(pcm.Data) < nch:
		return nil, 0, fmt.Errorf("%s: %w", path, errEmpty)
	}
	return split(pcm.Data, nch), rate, nil
}

// ReadMono decodes path and averages its channels.
func ReadMono(path string) ([]float64, int, error) {
	chans, rate, err := ReadChannels(path)
	if err != nil {
		return nil, 0, err
	}
	scale := 1 / float64(len(chans))
	mono := make([]float64, len(chans[0]))
	for _, ch := range chans {
		for i, v := range ch {
			mono[i] += float64(v) * scale
		}
	}
	return mono, rate, nil
}

// WriteStereoInterleaved writes an L/R interleaved buffer as 16-bit PCM.
func WriteStereoInterleaved(path string, samples []float32, sampleRate int) error {
	return encode(path, samples, sampleRate, 2)
}

// WriteMono writes a single channel as 16-bit PCM.
func WriteMono(path string, data []float32, sampleRate int) error {
	return encode(path, data, sampleRate, 1)
}

func encode(path string, data []float32, sampleRate, channels int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, pcmBits, channels, 1)
	werr := enc.Write(&audio.Float32Buffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           data,
		SourceBitDepth: pcmBits,
	})
	cerr := enc.Close()
	ferr := f.Close()
	return errors.Join(werr, cerr, ferr)
}

// Resample converts x from one rate to another. Equal rates return x itself.
func Resample(x []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return x, nil
	}
	r, err := dspresample.NewForRates(float64(fromRate), float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest))
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", fromRate, toRate, err)
	}
	return r.Process(x), nil
}

// Resample32 is Resample for float32 channels.
func Resample32(x []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return x, nil
	}
	y, err := Resample(To64(x), fromRate, toRate)
	if err != nil {
		return nil, err
	}
	return to32(y), nil
}

// ResampleInterleaved resamples each channel of an interleaved stereo buffer
// and re-interleaves them, trimmed to the shorter result.
func ResampleInterleaved(st []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return st, nil
	}
	chans := split(st, 2)
	for c := range chans {
		var err error
		if chans[c], err = Resample32(chans[c], fromRate, toRate); err != nil {
			return nil, err
		}
	}
	return interleave(chans), nil
}

// StereoToMono64 averages an interleaved stereo buffer. Inputs shorter than
// one frame give nil.
func StereoToMono64(st []float32) []float64 {
	if len(st) < 2 {
		return nil
	}
	mono := make([]float64, len(st)/2)
	for i := range mono {
		mono[i] = (float64(st[2*i]) + float64(st[2*i+1])) / 2
	}
	return mono
}

// To64 widens a float32 buffer.
func To64(x []float32) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = float64(v)
	}
	return y
}

func to32(x []float64) []float32 {
	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = float32(v)
	}
	return y
}

// split de-interleaves data into n channels, dropping a partial last frame.
func split(data []float32, n int) [][]float32 {
	frames := len(data) / n
	chans := make([][]float32, n)
	for c := range chans {
		ch := make([]float32, frames)
		for i := range ch {
			ch[i] = data[i*n+c]
		}
		chans[c] = ch
	}
	return chans
}

// interleave is the inverse of split, using the shortest channel's length.
func interleave(chans [][]float32) []float32 {
	frames := len(chans[0])
	for _, ch := range chans[1:] {
		frames = min(frames, len(ch))
	}
	n := len(chans)
	out := make([]float32, frames*n)
	for c, ch := range chans {
		for i := 0; i < frames; i++ {
			out[i*n+c] = ch[i]
		}
	}
	return out
}

// RMS is the root mean square of a block, mono or interleaved.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var acc float64
	for _, s := range block {
		acc += float64(s) * float64(s)
	}
	return math.Sqrt(acc / float64(len(block)))
}

// DBFSToLinear converts a dBFS level to linear amplitude.
func DBFSToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
