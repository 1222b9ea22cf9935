// Package coordinator implements the request orchestration state machine.
// It owns the single worker (loaded model, recorder, microphone), serializes
// trigger handling with an at-most-one-in-flight policy, and routes each
// utterance through transcribe, format, copy, and optionally paste. A second
// trigger arriving while a request is in flight is rejected immediately
// rather than queued.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/christopherlouet/stt-clipboard/internal/clipboard"
	"github.com/christopherlouet/stt-clipboard/internal/history"
	"github.com/christopherlouet/stt-clipboard/internal/observe"
	"github.com/christopherlouet/stt-clipboard/internal/recorder"
	"github.com/christopherlouet/stt-clipboard/internal/trigger"
	"github.com/christopherlouet/stt-clipboard/pkg/stt"
)

// State is the coordinator's request lifecycle phase. At most one non-idle
// request exists process-wide.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StatePostProcessing
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StatePostProcessing:
		return "post_processing"
	default:
		return "idle"
	}
}

// Sentinel outcomes surfaced to the trigger boundary.
var (
	// ErrBusy signals that a prior request is still in flight. The event
	// is rejected, not queued.
	ErrBusy = errors.New("coordinator: request already in flight")

	// ErrNotReady signals that Initialize has not completed yet.
	ErrNotReady = errors.New("coordinator: worker not initialized")

	// ErrNoSession signals a stop request with no continuous session
	// running.
	ErrNoSession = errors.New("coordinator: no continuous session active")
)

// Recorder is the segmentation engine surface the coordinator drives.
type Recorder interface {
	Record(ctx context.Context) (recorder.Utterance, error)
	RecordContinuous(ctx context.Context, emit func(recorder.Utterance) error) error
}

// Formatter post-processes transcribed text. A formatting failure falls back
// to the raw text rather than losing the transcription.
type Formatter interface {
	Format(text, language string) (string, error)
}

// Copier places text on the clipboard. Retries live behind this interface.
type Copier interface {
	Copy(ctx context.Context, text string) error
}

// Paster injects a paste keystroke.
type Paster interface {
	Paste(ctx context.Context, mode clipboard.PasteMode) error
}

// Notifier surfaces user-facing events. All methods are fire-and-forget.
type Notifier interface {
	RecordingStarted(ctx context.Context)
	TextCopied(ctx context.Context, text string)
	NoSpeech(ctx context.Context)
	Failure(ctx context.Context, reason string)
}

// HistorySink records completed transcriptions.
type HistorySink interface {
	Add(e history.Entry) error
}

// Outcome is the terminal result of one handled trigger.
type Outcome struct {
	// Text is the final (formatted) text placed on the clipboard.
	Text string

	// NoSpeech marks the distinguished "nothing to transcribe" outcome.
	// It is not a failure.
	NoSpeech bool

	// Session holds the accumulated texts of a continuous run, set only
	// for a stop trigger.
	Session []string
}

// Config holds the coordinator's own tunables; collaborator behavior is
// configured on the collaborators themselves.
type Config struct {
	// SampleRate of utterance audio handed to the transcriber.
	SampleRate int

	// Warmup runs a priming inference during Initialize.
	Warmup bool

	// PasteEnabled allows paste triggers to inject keystrokes. When false
	// they behave like copy triggers.
	PasteEnabled bool

	// PasteDelay is the pause between copy and keystroke, letting the
	// target window regain focus.
	PasteDelay time.Duration
}

// Deps wires the coordinator's collaborators. Recorder, Transcriber, and
// Copier are required; the rest degrade gracefully when nil.
type Deps struct {
	Recorder    Recorder
	Transcriber stt.Transcriber
	Copier      Copier
	Formatter   Formatter
	Paster      Paster
	Notifier    Notifier
	History     HistorySink
	Metrics     *observe.Metrics
	Logger      *slog.Logger
}

// Coordinator serializes the trigger-to-clipboard pipeline.
type Coordinator struct {
	rec     Recorder
	stt     stt.Transcriber
	copier  Copier
	format  Formatter
	paster  Paster
	notify  Notifier
	hist    HistorySink
	metrics *observe.Metrics
	log     *slog.Logger
	cfg     Config

	mu    sync.Mutex
	state State
	ready bool
	cont  *continuousSession
}

// New validates deps and creates a Coordinator. Initialize must be called
// before the first trigger.
func New(deps Deps, cfg Config) (*Coordinator, error) {
	if deps.Recorder == nil {
		return nil, errors.New("coordinator: Recorder is required")
	}
	if deps.Transcriber == nil {
		return nil, errors.New("coordinator: Transcriber is required")
	}
	if deps.Copier == nil {
		return nil, errors.New("coordinator: Copier is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	c := &Coordinator{
		rec:     deps.Recorder,
		stt:     deps.Transcriber,
		copier:  deps.Copier,
		format:  deps.Formatter,
		paster:  deps.Paster,
		notify:  deps.Notifier,
		hist:    deps.History,
		metrics: deps.Metrics,
		log:     deps.Logger,
		cfg:     cfg,
	}
	if c.notify == nil {
		c.notify = noopNotifier{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// Initialize prepares the worker: an optional warmup inference primes the
// model so the first real request does not pay the cold-start cost. No
// trigger is accepted before Initialize returns.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.cfg.Warmup {
		res, err := stt.Warmup(ctx, c.stt, c.cfg.SampleRate)
		if err != nil {
			return fmt.Errorf("coordinator: warmup: %w", err)
		}
		c.log.Info("transcription model warmed up", "elapsed", res.Elapsed)
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Ready reports whether the worker accepts triggers. Used by the readiness
// probe.
func (c *Coordinator) Ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return ErrNotReady
	}
	return nil
}

// State returns the current request state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops a running continuous session, if any. One-shot requests run to
// completion on their own.
func (c *Coordinator) Close() error {
	_, err := c.stopContinuous(context.Background())
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// Handle runs the pipeline for one trigger event. Failures are converted to
// terminal results here; the state is guaranteed to return to idle (or stay
// in the continuous recording state) on every path.
func (c *Coordinator) Handle(ctx context.Context, ev trigger.Event) (Outcome, error) {
	switch ev {
	case trigger.EventCopy:
		return c.oneShot(ctx, ev, false, clipboard.PasteStandard)
	case trigger.EventPaste:
		return c.oneShot(ctx, ev, true, clipboard.PasteStandard)
	case trigger.EventPasteTerminal:
		return c.oneShot(ctx, ev, true, clipboard.PasteTerminal)
	case trigger.EventStartContinuous:
		return c.startContinuous(ctx)
	case trigger.EventStopContinuous:
		return c.stopContinuous(ctx)
	default:
		return Outcome{}, fmt.Errorf("coordinator: unhandled trigger %q", ev)
	}
}

// acquire transitions idle → recording, rejecting the request when the
// worker is not ready or another request is in flight.
func (c *Coordinator) acquire(ctx context.Context, ev trigger.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return ErrNotReady
	}
	if c.state != StateIdle {
		c.metrics.BusyRejections.Add(ctx, 1)
		c.log.Debug("trigger rejected, request in flight", "trigger", ev.String(), "state", c.state.String())
		return ErrBusy
	}
	c.state = StateRecording
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// oneShot runs the record → transcribe → format → copy → paste pipeline for
// a single utterance.
func (c *Coordinator) oneShot(ctx context.Context, ev trigger.Event, paste bool, mode clipboard.PasteMode) (Outcome, error) {
	if err := c.acquire(ctx, ev); err != nil {
		return Outcome{}, err
	}
	c.metrics.ActiveRequests.Add(ctx, 1)
	defer func() {
		c.metrics.ActiveRequests.Add(ctx, -1)
		c.setState(StateIdle)
	}()

	c.notify.RecordingStarted(ctx)

	recStart := time.Now()
	utt, err := c.rec.Record(ctx)
	c.metrics.RecordStage(ctx, c.metrics.RecordDuration, time.Since(recStart))
	if errors.Is(err, recorder.ErrNoSpeech) {
		return c.noSpeech(ctx, ev), nil
	}
	if err != nil {
		c.metrics.RecordRequest(ctx, ev.String(), "capture_error")
		c.notify.Failure(ctx, "microphone capture failed")
		return Outcome{}, fmt.Errorf("coordinator: capture: %w", err)
	}

	c.setState(StateTranscribing)
	text, lang, elapsed, err := c.transcribe(ctx, utt)
	if err != nil {
		c.metrics.RecordRequest(ctx, ev.String(), "transcribe_error")
		c.notify.Failure(ctx, "transcription failed")
		return Outcome{}, err
	}
	if text == "" {
		// The model heard only noise; same user-facing outcome as silence.
		return c.noSpeech(ctx, ev), nil
	}

	c.setState(StatePostProcessing)
	text = c.applyFormat(text, lang)

	copyStart := time.Now()
	err = c.copier.Copy(ctx, text)
	c.metrics.RecordStage(ctx, c.metrics.CopyDuration, time.Since(copyStart))
	if err != nil {
		c.metrics.RecordRequest(ctx, ev.String(), "copy_error")
		c.notify.Failure(ctx, "clipboard copy failed")
		return Outcome{}, fmt.Errorf("coordinator: %w", err)
	}

	c.addHistory(text, lang, utt.Duration, elapsed)
	c.notify.TextCopied(ctx, text)

	if paste && c.cfg.PasteEnabled {
		c.pasteAfterDelay(ctx, mode)
	}

	c.metrics.RecordRequest(ctx, ev.String(), "ok")
	c.metrics.AudioSeconds.Add(ctx, utt.Duration.Seconds())
	return Outcome{Text: text}, nil
}

// noSpeech finalizes the distinguished no-speech outcome.
func (c *Coordinator) noSpeech(ctx context.Context, ev trigger.Event) Outcome {
	c.metrics.NoSpeech.Add(ctx, 1)
	c.metrics.RecordRequest(ctx, ev.String(), "no_speech")
	c.notify.NoSpeech(ctx)
	return Outcome{NoSpeech: true}
}

// transcribe runs the model over one utterance and trims the result.
func (c *Coordinator) transcribe(ctx context.Context, utt recorder.Utterance) (text, lang string, elapsed time.Duration, err error) {
	start := time.Now()
	res, err := c.stt.Transcribe(ctx, utt.Samples, c.cfg.SampleRate)
	elapsed = time.Since(start)
	c.metrics.RecordStage(ctx, c.metrics.TranscribeDuration, elapsed)
	if err != nil {
		// Audio is discarded; re-recording is cheaper and safer than
		// retrying on a possibly corrupt buffer.
		return "", "", elapsed, fmt.Errorf("coordinator: transcribe: %w", err)
	}
	return strings.TrimSpace(res.Text), res.Language, elapsed, nil
}

// applyFormat post-processes text, falling back to the raw transcription
// when formatting fails.
func (c *Coordinator) applyFormat(text, lang string) string {
	if c.format == nil {
		return text
	}
	formatted, err := c.format.Format(text, lang)
	if err != nil {
		c.log.Warn("formatting failed, using raw transcription", "error", err)
		return text
	}
	return formatted
}

// pasteAfterDelay injects the keystroke once the target window has had time
// to regain focus. A paste failure never rolls back the copy.
func (c *Coordinator) pasteAfterDelay(ctx context.Context, mode clipboard.PasteMode) {
	if c.paster == nil {
		c.log.Warn("paste requested but no paste tool is configured")
		return
	}
	if c.cfg.PasteDelay > 0 {
		select {
		case <-time.After(c.cfg.PasteDelay):
		case <-ctx.Done():
			return
		}
	}
	start := time.Now()
	err := c.paster.Paste(ctx, mode)
	c.metrics.RecordStage(ctx, c.metrics.PasteDuration, time.Since(start))
	if err != nil {
		c.log.Warn("auto-paste failed, text remains on clipboard", "error", err)
	}
}

// addHistory records a completed transcription when a sink is configured.
func (c *Coordinator) addHistory(text, lang string, audio, inference time.Duration) {
	if c.hist == nil {
		return
	}
	err := c.hist.Add(history.Entry{
		Text:              text,
		Timestamp:         time.Now(),
		Language:          lang,
		AudioDuration:     audio.Seconds(),
		TranscriptionTime: inference.Seconds(),
	})
	if err != nil {
		c.log.Warn("history append failed", "error", err)
	}
}

// noopNotifier is used when no notifier is wired.
type noopNotifier struct{}

func (noopNotifier) RecordingStarted(context.Context)   {}
func (noopNotifier) TextCopied(context.Context, string) {}
func (noopNotifier) NoSpeech(context.Context)           {}
func (noopNotifier) Failure(context.Context, string)    {}
