package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PasteMode selects the keystroke to simulate. Terminals intercept Ctrl+V,
// so they get Ctrl+Shift+V instead.
type PasteMode int

const (
	PasteStandard PasteMode = iota
	PasteTerminal
)

func (m PasteMode) String() string {
	if m == PasteTerminal {
		return "terminal"
	}
	return "standard"
}

// ydotool takes raw key codes as CODE:STATE pairs. Ctrl=29, Shift=42, V=47.
var (
	ydotoolStandard = []string{"key", "29:1", "47:1", "47:0", "29:0"}
	ydotoolTerminal = []string{"key", "29:1", "42:1", "47:1", "47:0", "42:0", "29:0"}
)

// Paster simulates a paste keystroke via the first available input tool.
// ydotool works on both display servers (given a running ydotoold), wtype is
// Wayland-only, xdotool is X11-only.
type Paster struct {
	tool    string
	timeout time.Duration
	log     *slog.Logger
}

// PasterOption is a functional option for configuring a Paster.
type PasterOption func(*Paster)

// WithPasteTimeout bounds each keystroke injection.
func WithPasteTimeout(d time.Duration) PasterOption {
	return func(p *Paster) { p.timeout = d }
}

// WithPasteLogger sets the logger for paste diagnostics.
func WithPasteLogger(log *slog.Logger) PasterOption {
	return func(p *Paster) { p.log = log }
}

// NewPaster resolves the first available paste tool for the session. X11
// prefers xdotool; everything else tries ydotool first.
func NewPaster(session SessionType, opts ...PasterOption) (*Paster, error) {
	p := &Paster{
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}

	candidates := []string{"ydotool", "wtype", "xdotool"}
	if session == SessionX11 {
		candidates = []string{"xdotool", "ydotool"}
	}
	for _, name := range candidates {
		if _, err := lookPath(name); err == nil {
			p.tool = name
			return p, nil
		}
	}
	return nil, fmt.Errorf("clipboard: no paste tool available for %s session (tried %s)", session, strings.Join(candidates, ", "))
}

// Tool reports the resolved paste tool name.
func (p *Paster) Tool() string { return p.tool }

// Paste injects the keystroke for the given mode. A failure here never
// invalidates the copy that preceded it; callers treat it as non-fatal.
func (p *Paster) Paste(ctx context.Context, mode PasteMode) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := p.pasteArgs(mode)
	cmd := execCommand(ctx, p.tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("clipboard: %s paste timed out: %w", p.tool, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("clipboard: %s paste: %w: %s", p.tool, err, msg)
		}
		return fmt.Errorf("clipboard: %s paste: %w", p.tool, err)
	}
	p.log.Debug("paste keystroke sent", "tool", p.tool, "mode", mode.String())
	return nil
}

func (p *Paster) pasteArgs(mode PasteMode) []string {
	switch p.tool {
	case "ydotool":
		if mode == PasteTerminal {
			return ydotoolTerminal
		}
		return ydotoolStandard
	case "wtype":
		if mode == PasteTerminal {
			return []string{"-M", "ctrl", "-M", "shift", "-k", "v", "-m", "shift", "-m", "ctrl"}
		}
		return []string{"-M", "ctrl", "-k", "v", "-m", "ctrl"}
	default:
		if mode == PasteTerminal {
			return []string{"key", "ctrl+shift+v"}
		}
		return []string{"key", "ctrl+v"}
	}
}
