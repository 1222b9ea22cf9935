// This file contains the Transcriber implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/christopherlouet/stt-clipboard/pkg/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

const (
	// autoLanguage asks whisper.cpp to detect the spoken language itself.
	autoLanguage = "auto"
)

// Transcriber implements stt.Transcriber using whisper.cpp Go bindings
// (CGO). The model is loaded once at construction and reused for every
// utterance; each Transcribe call gets a fresh whisper context because
// contexts are not safe for reuse across inferences.
type Transcriber struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage pins transcription to a BCP-47 language code (e.g. "fr",
// "en"). When empty the model auto-detects the language per utterance.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp may use per
// inference. Zero means runtime.NumCPU().
func WithThreads(n uint) Option {
	return func(t *Transcriber) { t.threads = n }
}

// New loads the whisper.cpp model from the given file path. The caller must
// call Close when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:   model,
		threads: uint(runtime.NumCPU()),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Must be called when the transcriber is
// no longer needed.
func (t *Transcriber) Close() error {
	if t.model != nil {
		err := t.model.Close()
		t.model = nil
		return err
	}
	return nil
}

// Transcribe runs one full-utterance inference and returns the concatenated
// segment text along with the language the model settled on.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if t.model == nil {
		return stt.Result{}, errors.New("whisper: transcriber is closed")
	}
	if len(samples) == 0 {
		return stt.Result{}, nil
	}
	if sampleRate != whisperlib.SampleRate {
		return stt.Result{}, fmt.Errorf("whisper: unsupported sample rate %d, model requires %d", sampleRate, whisperlib.SampleRate)
	}

	// Create a new whisper context for this inference. Contexts are NOT
	// thread-safe, but the model can be shared.
	wctx, err := t.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := t.language
	if lang == "" {
		lang = autoLanguage
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", lang, "error", err)
	}
	if t.threads > 0 {
		wctx.SetThreads(t.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{
		Text:     strings.Join(parts, " "),
		Language: wctx.Language(),
	}, nil
}
