package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christopherlouet/stt-clipboard/internal/clipboard"
	"github.com/christopherlouet/stt-clipboard/internal/history"
	"github.com/christopherlouet/stt-clipboard/internal/recorder"
	"github.com/christopherlouet/stt-clipboard/internal/trigger"
	"github.com/christopherlouet/stt-clipboard/pkg/stt"
	sttmock "github.com/christopherlouet/stt-clipboard/pkg/stt/mock"
)

// fakeRecorder scripts Record results and feeds scripted utterances to
// RecordContinuous before blocking until cancellation.
type fakeRecorder struct {
	mu         sync.Mutex
	utterances []recorder.Utterance
	err        error
	next       int

	// block, when non-nil, makes Record wait until the channel is closed.
	block chan struct{}

	// contErr, when set, makes RecordContinuous fail after emitting.
	contErr error
}

func (r *fakeRecorder) Record(ctx context.Context) (recorder.Utterance, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return recorder.Utterance{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return recorder.Utterance{}, r.err
	}
	if r.next < len(r.utterances) {
		u := r.utterances[r.next]
		r.next++
		return u, nil
	}
	return recorder.Utterance{}, recorder.ErrNoSpeech
}

func (r *fakeRecorder) RecordContinuous(ctx context.Context, emit func(recorder.Utterance) error) error {
	r.mu.Lock()
	utts := r.utterances
	contErr := r.contErr
	r.mu.Unlock()

	for _, u := range utts {
		if err := emit(u); err != nil {
			return err
		}
	}
	if contErr != nil {
		return contErr
	}
	<-ctx.Done()
	return nil
}

type fakeCopier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (c *fakeCopier) Copy(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeCopier) copied() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

type fakePaster struct {
	mu    sync.Mutex
	modes []clipboard.PasteMode
	err   error
}

func (p *fakePaster) Paste(_ context.Context, mode clipboard.PasteMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, mode)
	return p.err
}

// bangFormatter appends "!" so tests can tell formatted from raw text.
type bangFormatter struct{ err error }

func (f bangFormatter) Format(text, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return text + "!", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	started  int
	copied   int
	noSpeech int
	failures int
}

func (n *fakeNotifier) RecordingStarted(context.Context) { n.mu.Lock(); n.started++; n.mu.Unlock() }
func (n *fakeNotifier) TextCopied(context.Context, string) {
	n.mu.Lock()
	n.copied++
	n.mu.Unlock()
}
func (n *fakeNotifier) NoSpeech(context.Context) { n.mu.Lock(); n.noSpeech++; n.mu.Unlock() }
func (n *fakeNotifier) Failure(context.Context, string) {
	n.mu.Lock()
	n.failures++
	n.mu.Unlock()
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *fakeHistory) Add(e history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

// harness bundles a ready coordinator with its fakes.
type harness struct {
	coord  *Coordinator
	rec    *fakeRecorder
	stt    *sttmock.Transcriber
	copier *fakeCopier
	paster *fakePaster
	notify *fakeNotifier
	hist   *fakeHistory
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		rec:    &fakeRecorder{},
		stt:    &sttmock.Transcriber{},
		copier: &fakeCopier{},
		paster: &fakePaster{},
		notify: &fakeNotifier{},
		hist:   &fakeHistory{},
	}
	coord, err := New(Deps{
		Recorder:    h.rec,
		Transcriber: h.stt,
		Copier:      h.copier,
		Formatter:   bangFormatter{},
		Paster:      h.paster,
		Notifier:    h.notify,
		History:     h.hist,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.coord = coord
	return h
}

func oneSecondUtterance() recorder.Utterance {
	return recorder.Utterance{Samples: make([]float32, 16000), Duration: time.Second}
}

func TestHandle_CopyPipeline(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: " bonjour tout le monde ", Language: "fr"}}

	out, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Text != "bonjour tout le monde!" {
		t.Errorf("text = %q, want formatted transcription", out.Text)
	}
	if out.NoSpeech {
		t.Error("unexpected no-speech outcome")
	}
	if got := h.copier.copied(); len(got) != 1 || got[0] != "bonjour tout le monde!" {
		t.Errorf("copied = %v", got)
	}
	if len(h.paster.modes) != 0 {
		t.Errorf("copy trigger must not paste, got %v", h.paster.modes)
	}
	if len(h.hist.entries) != 1 || h.hist.entries[0].Language != "fr" {
		t.Errorf("history = %+v", h.hist.entries)
	}
	if h.hist.entries[0].AudioDuration != 1.0 {
		t.Errorf("history audio duration = %v, want 1.0", h.hist.entries[0].AudioDuration)
	}
	if got := h.stt.Calls[0].SampleRate; got != 16000 {
		t.Errorf("transcribe sample rate = %d", got)
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}
}

func TestHandle_PasteTriggersInjectKeystroke(t *testing.T) {
	tests := []struct {
		event trigger.Event
		mode  clipboard.PasteMode
	}{
		{trigger.EventPaste, clipboard.PasteStandard},
		{trigger.EventPasteTerminal, clipboard.PasteTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.event.String(), func(t *testing.T) {
			h := newHarness(t, Config{SampleRate: 16000, PasteEnabled: true})
			h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
			h.stt.Results = []stt.Result{{Text: "hello"}}

			if _, err := h.coord.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(h.paster.modes) != 1 || h.paster.modes[0] != tt.mode {
				t.Errorf("paste modes = %v, want [%v]", h.paster.modes, tt.mode)
			}
		})
	}
}

func TestHandle_PasteDisabledFallsBackToCopy(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000, PasteEnabled: false})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "hello"}}

	out, err := h.coord.Handle(context.Background(), trigger.EventPaste)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Text != "hello!" {
		t.Errorf("text = %q", out.Text)
	}
	if len(h.paster.modes) != 0 {
		t.Error("paste must not fire when disabled")
	}
}

func TestHandle_PasteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000, PasteEnabled: true})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "hello"}}
	h.paster.err = errors.New("ydotoold not running")

	out, err := h.coord.Handle(context.Background(), trigger.EventPaste)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Text != "hello!" {
		t.Errorf("text = %q, clipboard content must survive paste failure", out.Text)
	}
}

func TestHandle_NoSpeechSkipsTranscription(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	// Recorder scripted with no utterances returns ErrNoSpeech.

	out, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.NoSpeech {
		t.Error("want no-speech outcome")
	}
	if h.stt.CallCount() != 0 {
		t.Errorf("transcriber invoked %d times on silence", h.stt.CallCount())
	}
	if len(h.copier.copied()) != 0 {
		t.Error("clipboard must be untouched on silence")
	}
	if h.notify.noSpeech != 1 {
		t.Errorf("no-speech notifications = %d", h.notify.noSpeech)
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}
}

func TestHandle_EmptyTranscriptionIsNoSpeech(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "   "}}

	out, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.NoSpeech {
		t.Error("whitespace-only transcription must be a no-speech outcome")
	}
	if len(h.copier.copied()) != 0 {
		t.Error("clipboard must be untouched")
	}
}

func TestHandle_CaptureErrorRestoresIdle(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.err = errors.New("ffmpeg exited")

	_, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err == nil {
		t.Fatal("expected capture error")
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}
	if h.notify.failures != 1 {
		t.Errorf("failure notifications = %d", h.notify.failures)
	}
}

func TestHandle_TranscribeErrorRestoresIdle(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Err = errors.New("model blew up")

	_, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err == nil {
		t.Fatal("expected transcription error")
	}
	if len(h.copier.copied()) != 0 {
		t.Error("clipboard must be untouched on transcription failure")
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}
}

func TestHandle_CopyErrorRestoresIdle(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "hello"}}
	h.copier.err = errors.New("wl-copy missing")

	_, err := h.coord.Handle(context.Background(), trigger.EventCopy)
	if err == nil {
		t.Fatal("expected copy error")
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}
}

func TestHandle_FormatterErrorFallsBackToRawText(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "raw words"}}

	coord, err := New(Deps{
		Recorder:    h.rec,
		Transcriber: h.stt,
		Copier:      h.copier,
		Formatter:   bangFormatter{err: errors.New("regexp meltdown")},
	}, Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	out, err := coord.Handle(context.Background(), trigger.EventCopy)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Text != "raw words" {
		t.Errorf("text = %q, want raw transcription", out.Text)
	}
}

func TestHandle_BusyRejectsSecondTrigger(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.block = make(chan struct{})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance()}
	h.stt.Results = []stt.Result{{Text: "hello"}}

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Handle(context.Background(), trigger.EventCopy)
		done <- err
	}()

	// Wait for the first request to reach the recording state.
	deadline := time.Now().Add(2 * time.Second)
	for h.coord.State() != StateRecording {
		if time.Now().After(deadline) {
			t.Fatal("first request never started recording")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := h.coord.Handle(context.Background(), trigger.EventPaste); !errors.Is(err, ErrBusy) {
		t.Errorf("second trigger: err = %v, want ErrBusy", err)
	}
	if _, err := h.coord.Handle(context.Background(), trigger.EventStartContinuous); !errors.Is(err, ErrBusy) {
		t.Errorf("continuous start while busy: err = %v, want ErrBusy", err)
	}

	close(h.rec.block)
	if err := <-done; err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if got := h.copier.copied(); len(got) != 1 {
		t.Errorf("first request copied %d texts, rejection must not disturb it", len(got))
	}
}

func TestHandle_BeforeInitializeIsRejected(t *testing.T) {
	coord, err := New(Deps{
		Recorder:    &fakeRecorder{},
		Transcriber: &sttmock.Transcriber{},
		Copier:      &fakeCopier{},
	}, Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := coord.Handle(context.Background(), trigger.EventCopy); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if err := coord.Ready(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Ready() = %v, want ErrNotReady", err)
	}
}

func TestInitialize_WarmupPrimesModel(t *testing.T) {
	mock := &sttmock.Transcriber{}
	coord, err := New(Deps{
		Recorder:    &fakeRecorder{},
		Transcriber: mock,
		Copier:      &fakeCopier{},
	}, Config{SampleRate: 16000, Warmup: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("warmup transcribe calls = %d, want 1", mock.CallCount())
	}
	if got := len(mock.Calls[0].Samples); got != 16000 {
		t.Errorf("warmup sample count = %d, want one second", got)
	}
	if err := coord.Ready(); err != nil {
		t.Errorf("Ready() = %v", err)
	}
}

func TestContinuous_SessionAccumulatesCopiedTexts(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{oneSecondUtterance(), oneSecondUtterance()}
	h.stt.Results = []stt.Result{
		{Text: "premier segment", Language: "fr"},
		{Text: "deuxième segment", Language: "fr"},
	}

	if _, err := h.coord.Handle(context.Background(), trigger.EventStartContinuous); err != nil {
		t.Fatalf("start: %v", err)
	}

	// One-shot triggers are rejected while dictation runs.
	if _, err := h.coord.Handle(context.Background(), trigger.EventCopy); !errors.Is(err, ErrBusy) {
		t.Errorf("copy during dictation: err = %v, want ErrBusy", err)
	}

	out, err := h.coord.Handle(context.Background(), trigger.EventStopContinuous)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := []string{"premier segment!", "deuxième segment!"}
	if len(out.Session) != 2 || out.Session[0] != want[0] || out.Session[1] != want[1] {
		t.Errorf("session = %v, want %v", out.Session, want)
	}
	if out.Text != strings.Join(want, " ") {
		t.Errorf("joined text = %q", out.Text)
	}
	if got := h.copier.copied(); len(got) != 2 {
		t.Errorf("copied %d texts during session, want 2", len(got))
	}
	if len(h.paster.modes) != 0 {
		t.Error("continuous mode must never paste")
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state after stop = %v, want idle", h.coord.State())
	}
}

func TestContinuous_EmptyTranscriptionsAreSkipped(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.utterances = []recorder.Utterance{
		oneSecondUtterance(), oneSecondUtterance(), oneSecondUtterance(),
	}
	h.stt.Results = []stt.Result{
		{Text: "first"},
		{Text: "  "},
		{Text: "third"},
	}

	if _, err := h.coord.Handle(context.Background(), trigger.EventStartContinuous); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := h.coord.Handle(context.Background(), trigger.EventStopContinuous)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(out.Session) != 2 || out.Session[0] != "first!" || out.Session[1] != "third!" {
		t.Errorf("session = %v", out.Session)
	}
}

func TestContinuous_StopWithoutSession(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})

	if _, err := h.coord.Handle(context.Background(), trigger.EventStopContinuous); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestContinuous_CaptureFailureReleasesWorker(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})
	h.rec.contErr = errors.New("stream died")

	if _, err := h.coord.Handle(context.Background(), trigger.EventStartContinuous); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The session tears itself down once the capture stream dies.
	deadline := time.Now().Add(2 * time.Second)
	for h.coord.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("coordinator stuck in recording state after capture failure")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := h.coord.Handle(context.Background(), trigger.EventStopContinuous); !errors.Is(err, ErrNoSession) {
		t.Errorf("stop after failure: err = %v, want ErrNoSession", err)
	}
}

func TestClose_StopsRunningSession(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000})

	if _, err := h.coord.Handle(context.Background(), trigger.EventStartContinuous); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.coord.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.coord.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.coord.State())
	}

	// Close with nothing running is a no-op.
	if err := h.coord.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNew_RequiresCoreDeps(t *testing.T) {
	base := Deps{
		Recorder:    &fakeRecorder{},
		Transcriber: &sttmock.Transcriber{},
		Copier:      &fakeCopier{},
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"recorder", func(d *Deps) { d.Recorder = nil }},
		{"transcriber", func(d *Deps) { d.Transcriber = nil }},
		{"copier", func(d *Deps) { d.Copier = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base
			tt.mutate(&deps)
			if _, err := New(deps, Config{}); err == nil {
				t.Error("expected constructor error")
			}
		})
	}
}
