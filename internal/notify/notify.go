// Package notify surfaces pipeline events as desktop notifications through
// notify-send. A missing notify-send is not an error: the daemon stays fully
// functional, it just runs silently.
package notify

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Overridable in tests so no external processes are spawned.
var (
	execCommand = exec.CommandContext
	lookPath    = exec.LookPath
)

const (
	// defaultExpiry is how long notifications stay on screen.
	defaultExpiry = 2 * time.Second

	// maxBodyRunes bounds how much transcribed text a notification shows.
	maxBodyRunes = 100

	appName = "stt-clipboard"
)

// Notifier sends desktop notifications. The zero value is unusable; use New.
type Notifier struct {
	available bool
	timeout   time.Duration
	expiry    time.Duration
	log       *slog.Logger
}

// Option is a functional option for configuring a Notifier.
type Option func(*Notifier)

// WithTimeout bounds each notify-send invocation.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

// WithExpiry sets how long notifications remain visible.
func WithExpiry(d time.Duration) Option {
	return func(n *Notifier) { n.expiry = d }
}

// WithLogger sets the logger for notification diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) { n.log = log }
}

// New creates a Notifier, probing once for notify-send. When the tool is
// missing every Send becomes a silent no-op.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		timeout: 2 * time.Second,
		expiry:  defaultExpiry,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	if _, err := lookPath("notify-send"); err == nil {
		n.available = true
	} else {
		n.log.Debug("notify-send not found, desktop notifications disabled")
	}
	return n
}

// RecordingStarted announces that the microphone is live.
func (n *Notifier) RecordingStarted(ctx context.Context) {
	n.send(ctx, "Recording", "Listening...")
}

// TextCopied announces a successful transcription, showing a truncated
// preview of the text now on the clipboard.
func (n *Notifier) TextCopied(ctx context.Context, text string) {
	n.send(ctx, "Copied to clipboard", truncate(text, maxBodyRunes))
}

// NoSpeech announces that the recording ended without usable speech.
func (n *Notifier) NoSpeech(ctx context.Context) {
	n.send(ctx, "No speech detected", "Try again closer to the microphone")
}

// Failure announces a pipeline failure.
func (n *Notifier) Failure(ctx context.Context, reason string) {
	n.send(ctx, "Transcription failed", truncate(reason, maxBodyRunes))
}

// send fires one notification. Failures are logged, never propagated: a
// broken notification daemon must not affect the pipeline.
func (n *Notifier) send(ctx context.Context, summary, body string) {
	if !n.available {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"--app-name", appName,
		"--expire-time", strconv.Itoa(int(n.expiry.Milliseconds())),
		summary, body,
	}
	cmd := execCommand(ctx, "notify-send", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		n.log.Warn("desktop notification failed",
			"summary", summary,
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()))
	}
}

// truncate shortens s to at most max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
