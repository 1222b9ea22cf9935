// Package stt defines the Transcriber interface that converts a complete
// speech utterance into text, plus a model warmup helper shared by all
// backends.
package stt

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcribed text with surrounding whitespace trimmed.
	// Empty when the backend produced no usable output for the audio.
	Text string

	// Language is the BCP-47 code of the language the backend settled on,
	// e.g. "fr" or "en". Empty when the backend cannot report it.
	Language string
}

// Transcriber converts one complete utterance of mono float32 audio into
// text. Implementations are safe for sequential reuse across utterances but
// are not required to support concurrent Transcribe calls.
type Transcriber interface {
	// Transcribe runs inference over the full utterance. samples are mono
	// float32 values in [-1.0, 1.0] at the given sample rate. The context
	// bounds the inference; implementations should abort promptly when it
	// is cancelled.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)

	// Close releases model resources. Calling Close more than once is safe.
	Close() error
}
