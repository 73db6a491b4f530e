package dsp

import (
	"fmt"
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// LimiterParams configures the soft-knee dynamics stage on the output bus.
type LimiterParams struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
}

// DefaultLimiterParams is tuned so that a dozen overlapping voices at full
// gain stay clear of digital clipping.
func DefaultLimiterParams() LimiterParams {
	return LimiterParams{
		ThresholdDB: -12,
		KneeDB:      6,
		Ratio:       12,
		AttackMs:    3,
		ReleaseMs:   250,
	}
}

// Limiter is a feed-forward peak compressor with a quadratic soft knee.
type Limiter struct {
	sampleRate float64
	params     LimiterParams

	attackCoeff  float64
	releaseCoeff float64
	reductionDB  float64 // smoothed, <= 0
}

// NewLimiter validates p and returns a ready limiter.
func NewLimiter(sampleRate int, p LimiterParams) (*Limiter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0")
	}
	l := &Limiter{sampleRate: float64(sampleRate)}
	if err := l.SetParams(p); err != nil {
		return nil, err
	}
	return l, nil
}

// SetParams replaces the limiter settings.
func (l *Limiter) SetParams(p LimiterParams) error {
	if p.ThresholdDB > 0 || p.ThresholdDB < -60 {
		return fmt.Errorf("threshold must be in [-60,0] dB")
	}
	if p.KneeDB < 0 || p.KneeDB > 40 {
		return fmt.Errorf("knee must be in [0,40] dB")
	}
	if p.Ratio < 1 {
		return fmt.Errorf("ratio must be >= 1")
	}
	if p.AttackMs <= 0 || p.ReleaseMs <= 0 {
		return fmt.Errorf("attack and release must be > 0")
	}
	l.params = p
	l.attackCoeff = math.Exp(-1.0 / (p.AttackMs * 0.001 * l.sampleRate))
	l.releaseCoeff = math.Exp(-1.0 / (p.ReleaseMs * 0.001 * l.sampleRate))
	return nil
}

// Params returns the active settings.
func (l *Limiter) Params() LimiterParams {
	return l.params
}

// staticCurve returns the target gain change in dB (<= 0) for an input level.
func (l *Limiter) staticCurve(levelDB float64) float64 {
	p := l.params
	over := levelDB - p.ThresholdDB
	slope := 1.0/p.Ratio - 1.0
	switch {
	case p.KneeDB > 0 && math.Abs(over) <= p.KneeDB/2:
		x := over + p.KneeDB/2
		return slope * x * x / (2 * p.KneeDB)
	case over > 0:
		return slope * over
	default:
		return 0
	}
}

// Process applies gain reduction to one sample.
func (l *Limiter) Process(x float32) float32 {
	level := math.Abs(float64(x))
	levelDB := -120.0
	if level > 1e-6 {
		levelDB = 20 * math.Log10(level)
	}
	target := l.staticCurve(levelDB)
	coeff := l.releaseCoeff
	if target < l.reductionDB {
		coeff = l.attackCoeff
	}
	l.reductionDB = target + coeff*(l.reductionDB-target)
	l.reductionDB = dspcore.FlushDenormals(l.reductionDB)
	return float32(float64(x) * math.Pow(10, l.reductionDB/20))
}

// ReductionDB reports the current smoothed gain reduction.
func (l *Limiter) ReductionDB() float64 {
	return l.reductionDB
}

// Reset clears the detector.
func (l *Limiter) Reset() {
	l.reductionDB = 0
}
