package analysis

import (
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	spectrumSize   = 2048
	spectrumFrames = 8
	spectrumFloor  = -80.0
	maxCompareSec  = 6
)

// Metrics describes how far a candidate pluck is from a reference.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB  float64 `json:"spectral_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`
	AttackDiffMs    float64 `json:"attack_diff_ms"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

func worst(m Metrics) Metrics {
	m.Score = 1
	m.Similarity = 0
	return m
}

// Compare aligns both signals on their onsets, normalizes their peaks and
// scores envelope, spectrum, decay rate and attack. Score is in [0,1], 0 for
// identical input.
func Compare(reference, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 {
		return worst(m)
	}
	refOn := Onset(reference, 0.05)
	candOn := Onset(candidate, 0.05)
	if refOn < 0 || candOn < 0 {
		return worst(m)
	}
	m.LagSamples = candOn - refOn

	ref := normalizePeak(reference[refOn:])
	cand := normalizePeak(candidate[candOn:])
	n := min(len(ref), len(cand), sampleRate*maxCompareSec)
	if n < EnvelopeFrame*4 {
		return worst(m)
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	refEnv := Envelope(ref, EnvelopeFrame, EnvelopeHop)
	candEnv := Envelope(cand, EnvelopeFrame, EnvelopeHop)
	diff := make([]float64, len(refEnv))
	for i := range refEnv {
		diff[i] = math.Max(DB(refEnv[i]), spectrumFloor) - math.Max(DB(candEnv[i]), spectrumFloor)
	}
	m.EnvelopeRMSEDB = RMS(diff)

	m.SpectralRMSEDB = spectralDistance(ref, cand)

	hopSec := float64(EnvelopeHop) / float64(sampleRate)
	// NaN slopes stay zero so Metrics always encodes as JSON
	refSlope := DecaySlope(refEnv, hopSec)
	candSlope := DecaySlope(candEnv, hopSec)
	if isFinite(refSlope) && isFinite(candSlope) {
		m.RefDecayDBPerS = refSlope
		m.CandDecayDBPerS = candSlope
		m.DecayDiffDBPerS = math.Abs(refSlope - candSlope)
	}
	m.AttackDiffMs = 1000 * math.Abs(AttackTime(ref, sampleRate)-AttackTime(cand, sampleRate))

	envNorm := clamp01(m.EnvelopeRMSEDB / 30)
	specNorm := clamp01(m.SpectralRMSEDB / 30)
	decNorm := clamp01(m.DecayDiffDBPerS / 40)
	atkNorm := clamp01(m.AttackDiffMs / 100)
	m.Score = clamp01(0.40*envNorm + 0.30*specNorm + 0.20*decNorm + 0.10*atkNorm)
	m.Similarity = clamp01(math.Exp(-4 * m.Score))
	return m
}

func normalizePeak(x []float64) []float64 {
	out := make([]float64, len(x))
	p := Peak(x)
	if p == 0 {
		return out
	}
	for i, v := range x {
		out[i] = v / p
	}
	return out
}

// spectralDistance is the RMS dB difference of the Hann-windowed average
// magnitude spectra, each floored 80 dB under its own maximum.
func spectralDistance(a, b []float64) float64 {
	if len(a) < spectrumSize || len(b) < spectrumSize {
		return 0
	}
	plan, err := algofft.NewPlanReal64(spectrumSize)
	if err != nil {
		return 0
	}
	forward := func(dst []complex128, src []float64) { plan.Forward(dst, src) }
	sa := averageSpectrum(forward, a)
	sb := averageSpectrum(forward, b)
	toDB(sa)
	toDB(sb)
	var sum float64
	for k := 1; k < len(sa); k++ {
		d := sa[k] - sb[k]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sa)-1))
}

func averageSpectrum(forward func([]complex128, []float64), x []float64) []float64 {
	bins := spectrumSize / 2
	avg := make([]float64, bins)
	spec := make([]complex128, bins+1)
	buf := make([]float64, spectrumSize)
	hop := spectrumSize / 2
	frames := 0
	for pos := 0; pos+spectrumSize <= len(x) && frames < spectrumFrames; pos += hop {
		for i := range buf {
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(spectrumSize-1))
			buf[i] = x[pos+i] * w
		}
		forward(spec, buf)
		for k := range avg {
			avg[k] += cmplx.Abs(spec[k])
		}
		frames++
	}
	for k := range avg {
		avg[k] /= float64(frames)
	}
	return avg
}

func toDB(mag []float64) {
	top := -math.MaxFloat64
	for i, v := range mag {
		mag[i] = DB(v)
		top = math.Max(top, mag[i])
	}
	for i := range mag {
		mag[i] = math.Max(mag[i]-top, spectrumFloor)
	}
}
