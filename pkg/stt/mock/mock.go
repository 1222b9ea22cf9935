// Package mock provides a test double for the stt.Transcriber interface.
//
// Pre-populate Results (consumed in order) or set Err, then inspect Calls to
// verify which audio the consumer delivered.
package mock

import (
	"context"
	"sync"

	"github.com/christopherlouet/stt-clipboard/pkg/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32
	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned by successive Transcribe calls in order. When
	// the list is exhausted, Transcribe returns the zero Result.
	Results []stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Transcribe records the call and returns the next scripted Result or Err.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]float32, len(samples))
	copy(cp, samples)
	t.Calls = append(t.Calls, TranscribeCall{Samples: cp, SampleRate: sampleRate})

	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	if t.next < len(t.Results) {
		r := t.Results[t.next]
		t.next++
		return r, nil
	}
	return stt.Result{}, nil
}

// Close records the call.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCallCount++
	return nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// ResetCalls clears all recorded calls and rewinds the scripted Results.
// Thread-safe.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.CloseCallCount = 0
	t.next = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
