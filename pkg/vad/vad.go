// Package vad defines the Gate interface for Voice Activity Detection backends.
//
// A gate wraps a frame-level speech detector (the Silero VAD model, or a
// cheap RMS-energy estimator) and scores one fixed-size audio frame at a time
// with a speech probability. The gate itself is threshold-free: deciding
// whether a probability counts as speech belongs to the segmentation engine,
// which is where the threshold is configured.
//
// Gates sit on the capture path and are called once per frame (every ~32 ms
// at the default block size), so Classify must return quickly and must not
// block. A Gate carries per-stream state (the Silero RNN hidden state) and is
// therefore not safe for concurrent use; the single recorder goroutine is the
// only caller.
package vad

// Gate scores individual audio frames with a speech probability.
type Gate interface {
	// Classify returns the speech probability in [0.0, 1.0] for one frame of
	// mono float32 samples normalised to [-1.0, 1.0]. Implementations may
	// require an exact frame length (Silero needs 512 samples at 16 kHz) and
	// return an error otherwise. A classification error is non-fatal to the
	// stream: callers treat the frame as silence.
	Classify(frame []float32) (float64, error)

	// Reset clears accumulated detection state (RNN hidden state, smoothing
	// history) between recording sessions, so a previous utterance cannot
	// bias the next one.
	Reset() error

	// Close releases backend resources. Calling Close more than once is safe.
	Close() error
}
