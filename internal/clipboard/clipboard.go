// Package clipboard copies text to the desktop clipboard and simulates paste
// keystrokes by shelling out to session-appropriate tools: wl-copy on
// Wayland, xclip or xsel on X11, and ydotool, xdotool, or wtype for pasting.
// Every external call runs under a hard timeout so a wedged tool cannot
// stall the pipeline.
package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Overridable in tests so no external processes are spawned.
var (
	execCommand = exec.CommandContext
	lookPath    = exec.LookPath
	getenv      = os.Getenv
)

// SessionType identifies the display server in use.
type SessionType int

const (
	SessionUnknown SessionType = iota
	SessionWayland
	SessionX11
)

func (s SessionType) String() string {
	switch s {
	case SessionWayland:
		return "wayland"
	case SessionX11:
		return "x11"
	default:
		return "unknown"
	}
}

// DetectSession determines the session type from the environment, preferring
// the explicit XDG_SESSION_TYPE over display variables.
func DetectSession() SessionType {
	switch strings.ToLower(getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return SessionWayland
	case "x11":
		return SessionX11
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return SessionWayland
	}
	if getenv("DISPLAY") != "" {
		return SessionX11
	}
	return SessionUnknown
}

// copyTool is one clipboard backend: a binary plus the arguments that make
// it read the text from stdin into the clipboard selection.
type copyTool struct {
	name string
	args []string
}

// toolsForSession lists copy backends in order of preference.
func toolsForSession(session SessionType) []copyTool {
	wayland := copyTool{name: "wl-copy"}
	x11 := []copyTool{
		{name: "xclip", args: []string{"-selection", "clipboard"}},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	}
	switch session {
	case SessionWayland:
		return []copyTool{wayland}
	case SessionX11:
		return x11
	default:
		return append([]copyTool{wayland}, x11...)
	}
}

// Default copy behavior: up to 3 attempts with doubling backoff.
const (
	DefaultTimeout     = 2 * time.Second
	DefaultRetries     = 3
	DefaultBackoffBase = 100 * time.Millisecond
)

// Manager copies text to the clipboard with bounded retries.
type Manager struct {
	tool        copyTool
	timeout     time.Duration
	retries     int
	backoffBase time.Duration
	log         *slog.Logger
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds each individual copy attempt.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithRetries sets the maximum number of copy attempts.
func WithRetries(n int) ManagerOption {
	return func(m *Manager) { m.retries = n }
}

// WithBackoffBase sets the delay before the second attempt; each further
// attempt doubles it.
func WithBackoffBase(d time.Duration) ManagerOption {
	return func(m *Manager) { m.backoffBase = d }
}

// WithLogger sets the logger for per-attempt diagnostics.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager resolves the first available copy tool for the session and
// returns a Manager using it. It fails when no tool is installed.
func NewManager(session SessionType, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		timeout:     DefaultTimeout,
		retries:     DefaultRetries,
		backoffBase: DefaultBackoffBase,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}

	var tried []string
	for _, t := range toolsForSession(session) {
		if _, err := lookPath(t.name); err == nil {
			m.tool = t
			return m, nil
		}
		tried = append(tried, t.name)
	}
	return nil, fmt.Errorf("clipboard: no copy tool available for %s session (tried %s)", session, strings.Join(tried, ", "))
}

// Tool reports the resolved copy tool name.
func (m *Manager) Tool() string { return m.tool.name }

// Copy places text on the clipboard, retrying transient failures with
// doubling backoff before giving up.
func (m *Manager) Copy(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 0; attempt < m.retries; attempt++ {
		if attempt > 0 {
			delay := m.backoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("clipboard: copy cancelled: %w", ctx.Err())
			}
			m.log.Debug("retrying clipboard copy", "attempt", attempt+1, "tool", m.tool.name)
		}
		if lastErr = m.copyOnce(ctx, text); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("clipboard: copy failed after %d attempts: %w", m.retries, lastErr)
}

func (m *Manager) copyOnce(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := execCommand(ctx, m.tool.name, m.tool.args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out: %w", m.tool.name, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", m.tool.name, err, msg)
		}
		return fmt.Errorf("%s: %w", m.tool.name, err)
	}
	return nil
}
