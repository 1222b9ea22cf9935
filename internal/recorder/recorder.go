// Package recorder implements the speech segmentation engine. It drives a
// live capture stream through a voice activity gate and cuts it into bounded
// utterances: a rolling pre-roll preserves the apparent speech onset,
// trailing silence terminates the utterance, and a hard duration cutoff
// bounds runaway recordings regardless of what the gate reports.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/christopherlouet/stt-clipboard/internal/capture"
	"github.com/christopherlouet/stt-clipboard/pkg/audio"
	"github.com/christopherlouet/stt-clipboard/pkg/vad"
)

// ErrNoSpeech is returned by Record when the invocation terminated without a
// usable utterance: either no speech onset was detected at all, or the
// detected speech was shorter than the configured minimum (a false start).
// This is a normal outcome, not a capture failure.
var ErrNoSpeech = errors.New("recorder: no speech detected")

// Default segmentation parameters for 16 kHz dictation.
const (
	DefaultThreshold         = 0.5
	DefaultPreRoll           = 500 * time.Millisecond
	DefaultSilenceDuration   = 1200 * time.Millisecond
	DefaultMinSpeechDuration = 300 * time.Millisecond
	DefaultMaxDuration       = 30 * time.Second
)

// Config holds the segmentation parameters. Durations are converted to frame
// counts once per invocation, so all timing is derived from the sample
// stream itself rather than the wall clock.
type Config struct {
	// SampleRate in Hz. Zero means capture.DefaultSampleRate.
	SampleRate int
	// BlockSize is the per-frame sample count. Zero means capture.DefaultBlockSize.
	BlockSize int
	// Threshold is the speech probability above which a frame counts as
	// speech. Zero means DefaultThreshold.
	Threshold float64
	// PreRoll is how much audio preceding speech onset is kept.
	PreRoll time.Duration
	// SilenceDuration is the consecutive silence that terminates an
	// utterance. It also bounds how long a one-shot invocation waits for
	// speech onset before reporting no speech.
	SilenceDuration time.Duration
	// MinSpeechDuration is the least speech-classified audio an utterance
	// must contain; shorter detections are discarded as false starts.
	MinSpeechDuration time.Duration
	// MaxDuration is the hard cutoff on utterance length, enforced
	// regardless of gate output.
	MaxDuration time.Duration
	// InputFormat and InputDevice are passed through to the capture source.
	InputFormat string
	InputDevice string
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = capture.DefaultSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = capture.DefaultBlockSize
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.PreRoll <= 0 {
		c.PreRoll = DefaultPreRoll
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}

// Utterance is one bounded unit of recorded speech ready for transcription.
type Utterance struct {
	// Samples is mono float32 audio owned by the receiver.
	Samples []float32
	// Duration is the total audio length including pre-roll and trailing
	// silence.
	Duration time.Duration
}

// Recorder produces utterances from a capture source using a voice activity
// gate. One Recorder serves one invocation at a time; the coordinator
// enforces that discipline.
type Recorder struct {
	source capture.Source
	gate   vad.Gate
	cfg    Config
	log    *slog.Logger
}

// Option is a functional option for configuring a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for non-fatal segmentation events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

// New creates a Recorder over the given capture source and gate.
func New(source capture.Source, gate vad.Gate, cfg Config, opts ...Option) *Recorder {
	r := &Recorder{
		source: source,
		gate:   gate,
		cfg:    cfg.withDefaults(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record captures exactly one utterance. It returns ErrNoSpeech when no
// usable speech was detected; any other error is a capture failure and the
// partial audio is discarded. The capture session is always stopped before
// returning, on every path.
func (r *Recorder) Record(ctx context.Context) (Utterance, error) {
	session, err := r.source.Start(ctx, r.captureConfig())
	if err != nil {
		return Utterance{}, fmt.Errorf("recorder: start capture: %w", err)
	}
	defer session.Stop()

	if err := r.gate.Reset(); err != nil {
		r.log.Warn("vad gate reset failed", "error", err)
	}

	seg := newSegmenter(r.cfg, r.gate, r.log, true)
	for {
		if err := ctx.Err(); err != nil {
			return Utterance{}, fmt.Errorf("recorder: cancelled: %w", err)
		}
		frame, err := session.ReadFrame()
		if err != nil {
			return Utterance{}, fmt.Errorf("recorder: read frame: %w", err)
		}
		samples, done := seg.feed(frame)
		if !done {
			continue
		}
		if samples == nil {
			return Utterance{}, ErrNoSpeech
		}
		return r.utterance(samples), nil
	}
}

// RecordContinuous captures utterances until ctx is cancelled, surfacing
// each completed one through emit as soon as its trailing silence is
// confirmed. Audio still being segmented at cancellation is discarded. A
// non-nil error from emit aborts the loop and is returned unchanged.
func (r *Recorder) RecordContinuous(ctx context.Context, emit func(Utterance) error) error {
	session, err := r.source.Start(ctx, r.captureConfig())
	if err != nil {
		return fmt.Errorf("recorder: start capture: %w", err)
	}
	defer session.Stop()

	if err := r.gate.Reset(); err != nil {
		r.log.Warn("vad gate reset failed", "error", err)
	}

	seg := newSegmenter(r.cfg, r.gate, r.log, false)
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := session.ReadFrame()
		if err != nil {
			// Cancellation tears down the capture backend, which surfaces
			// here as a read error. That is the clean stop path.
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recorder: read frame: %w", err)
		}
		samples, done := seg.feed(frame)
		if !done {
			continue
		}
		if samples != nil {
			if err := emit(r.utterance(samples)); err != nil {
				return err
			}
		}
		seg.restart()
	}
}

func (r *Recorder) captureConfig() capture.Config {
	return capture.Config{
		SampleRate:  r.cfg.SampleRate,
		Channels:    1,
		BlockSize:   r.cfg.BlockSize,
		InputFormat: r.cfg.InputFormat,
		InputDevice: r.cfg.InputDevice,
	}
}

func (r *Recorder) utterance(samples []float32) Utterance {
	return Utterance{
		Samples:  samples,
		Duration: audio.SamplesDuration(len(samples), r.cfg.SampleRate),
	}
}

// ---- segmentation state machine ---------------------------------------------

type segState int

const (
	waitingForSpeech segState = iota
	inSpeech
	trailingSilence
)

// segmenter runs the per-frame state machine. All timing is in frame counts
// derived from the configured durations, so the same frame sequence always
// yields the same utterance boundaries.
type segmenter struct {
	gate      vad.Gate
	log       *slog.Logger
	threshold float64
	oneShot   bool

	state     segState
	ring      *frameRing
	utterance []float32

	waitingFrames int // consecutive silence frames while waiting for onset
	silenceFrames int // consecutive silence frames since last speech frame
	speechFrames  int // speech-classified frames since onset

	waitLimit    int // frames of initial silence before giving up (one-shot)
	silenceLimit int // frames of trailing silence that end the utterance
	minSpeech    int // frames of speech below which the utterance is a false start
	maxSamples   int // hard cutoff on utterance length
	blockSize    int
}

func newSegmenter(cfg Config, gate vad.Gate, log *slog.Logger, oneShot bool) *segmenter {
	return &segmenter{
		gate:      gate,
		log:       log,
		threshold: cfg.Threshold,
		oneShot:   oneShot,

		ring: newFrameRing(durationFrames(cfg.PreRoll, cfg.SampleRate, cfg.BlockSize), cfg.BlockSize),

		waitLimit:    durationFrames(cfg.SilenceDuration, cfg.SampleRate, cfg.BlockSize),
		silenceLimit: durationFrames(cfg.SilenceDuration, cfg.SampleRate, cfg.BlockSize),
		minSpeech:    durationFrames(cfg.MinSpeechDuration, cfg.SampleRate, cfg.BlockSize),
		maxSamples:   audio.DurationSamples(cfg.MaxDuration, cfg.SampleRate),
		blockSize:    cfg.BlockSize,
	}
}

// feed advances the state machine by one frame. It returns (nil, false)
// while segmentation continues, (samples, true) when an utterance completed,
// and (nil, true) when the invocation ended without usable speech.
func (s *segmenter) feed(frame []float32) ([]float32, bool) {
	isSpeech := s.classify(frame)

	switch s.state {
	case waitingForSpeech:
		if !isSpeech {
			s.ring.push(frame)
			s.waitingFrames++
			if s.oneShot && s.waitingFrames >= s.waitLimit {
				return nil, true
			}
			return nil, false
		}
		// Speech onset: seed the utterance with the pre-roll, then the
		// triggering frame itself.
		s.state = inSpeech
		s.utterance = s.ring.appendTo(s.utterance)
		s.utterance = append(s.utterance, frame...)
		s.speechFrames = 1
		s.silenceFrames = 0
		return s.checkCutoff()

	case inSpeech:
		s.utterance = append(s.utterance, frame...)
		if isSpeech {
			s.speechFrames++
		} else {
			s.state = trailingSilence
			s.silenceFrames = 1
		}
		return s.checkCutoff()

	case trailingSilence:
		s.utterance = append(s.utterance, frame...)
		if isSpeech {
			s.state = inSpeech
			s.speechFrames++
			s.silenceFrames = 0
			return s.checkCutoff()
		}
		s.silenceFrames++
		if s.silenceFrames >= s.silenceLimit {
			return s.emit()
		}
		return s.checkCutoff()
	}
	return nil, false
}

// restart resets the machine for the next utterance in continuous mode. The
// previously emitted samples slice was handed to the caller, so a fresh
// buffer is started.
func (s *segmenter) restart() {
	s.state = waitingForSpeech
	s.ring.reset()
	s.utterance = nil
	s.waitingFrames = 0
	s.silenceFrames = 0
	s.speechFrames = 0
	if err := s.gate.Reset(); err != nil {
		s.log.Warn("vad gate reset failed", "error", err)
	}
}

// classify asks the gate for a speech probability. A gate failure is treated
// as silence so a flaky detector never blocks the capture path.
func (s *segmenter) classify(frame []float32) bool {
	prob, err := s.gate.Classify(frame)
	if err != nil {
		s.log.Debug("vad classification failed, treating frame as silence", "error", err)
		return false
	}
	return prob > s.threshold
}

// checkCutoff enforces the hard duration bound after a frame was appended.
func (s *segmenter) checkCutoff() ([]float32, bool) {
	if len(s.utterance) >= s.maxSamples {
		return s.emit()
	}
	return nil, false
}

// emit finalizes the utterance, discarding it as a false start when it holds
// less speech than the configured minimum.
func (s *segmenter) emit() ([]float32, bool) {
	if s.speechFrames < s.minSpeech {
		s.utterance = s.utterance[:0]
		return nil, true
	}
	return s.utterance, true
}

// durationFrames converts a duration to a frame count, rounding up so the
// configured bound is never undershot.
func durationFrames(d time.Duration, sampleRate, blockSize int) int {
	samples := audio.DurationSamples(d, sampleRate)
	return (samples + blockSize - 1) / blockSize
}
