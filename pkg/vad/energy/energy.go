// Package energy implements a pure-Go voice activity gate based on RMS
// energy levels. It is far less accurate than the Silero model but has no
// native dependencies, which makes it the fallback backend on systems
// without an ONNX Runtime library and the default gate in tests.
package energy

import (
	"github.com/christopherlouet/stt-clipboard/pkg/audio"
	"github.com/christopherlouet/stt-clipboard/pkg/vad"
)

// Default RMS levels for 16 kHz mono microphone input. Levels below Floor
// map to probability 0, levels above Ceiling to probability 1.
const (
	DefaultFloor   = 0.008
	DefaultCeiling = 0.030
)

// Compile-time assertion that Gate satisfies vad.Gate.
var _ vad.Gate = (*Gate)(nil)

// Gate maps frame RMS energy to a pseudo speech probability by linear
// interpolation between a noise floor and a speech ceiling.
type Gate struct {
	floor   float64
	ceiling float64
}

// Option is a functional option for configuring an energy Gate.
type Option func(*Gate)

// WithFloor sets the RMS level at or below which a frame scores 0.
func WithFloor(floor float64) Option {
	return func(g *Gate) { g.floor = floor }
}

// WithCeiling sets the RMS level at or above which a frame scores 1.
func WithCeiling(ceiling float64) Option {
	return func(g *Gate) { g.ceiling = ceiling }
}

// New creates an energy gate with the default floor and ceiling levels.
func New(opts ...Option) *Gate {
	g := &Gate{
		floor:   DefaultFloor,
		ceiling: DefaultCeiling,
	}
	for _, o := range opts {
		o(g)
	}
	if g.ceiling <= g.floor {
		g.ceiling = g.floor + 1e-6
	}
	return g
}

// Classify returns the interpolated pseudo probability for the frame.
// It never fails and accepts frames of any length.
func (g *Gate) Classify(frame []float32) (float64, error) {
	level := audio.RMS(frame)
	switch {
	case level <= g.floor:
		return 0, nil
	case level >= g.ceiling:
		return 1, nil
	default:
		return (level - g.floor) / (g.ceiling - g.floor), nil
	}
}

// Reset is a no-op: the gate keeps no state between frames.
func (g *Gate) Reset() error { return nil }

// Close is a no-op.
func (g *Gate) Close() error { return nil }
