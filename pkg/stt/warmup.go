package stt

import (
	"context"
	"math"
	"time"
)

// warmupDuration is the length of the synthetic audio used to prime a model.
// One second is enough to force lazy allocations and kernel compilation in
// every backend without a noticeable startup cost.
const warmupDuration = time.Second

// WarmupResult reports how long the priming inference took.
type WarmupResult struct {
	Elapsed time.Duration
}

// Warmup runs one inference over near-silent synthetic audio so the first
// real request does not pay the model's cold-start penalty. The transcribed
// text is discarded; only errors and timing are surfaced.
func Warmup(ctx context.Context, t Transcriber, sampleRate int) (WarmupResult, error) {
	samples := warmupSamples(sampleRate)

	start := time.Now()
	if _, err := t.Transcribe(ctx, samples, sampleRate); err != nil {
		return WarmupResult{}, err
	}
	return WarmupResult{Elapsed: time.Since(start)}, nil
}

// warmupSamples builds one second of very quiet 440 Hz tone. True digital
// silence makes some whisper models hallucinate tokens, so a faint tone is
// used instead.
func warmupSamples(sampleRate int) []float32 {
	n := sampleRate
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.001 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return samples
}
