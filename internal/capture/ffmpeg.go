package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/christopherlouet/stt-clipboard/pkg/audio"
)

// startupProbe is how long Start waits for ffmpeg to survive before handing
// the session to the caller. Misconfigured devices make ffmpeg exit almost
// immediately, and catching that here gives a much better error than a
// truncated read later.
const startupProbe = 250 * time.Millisecond

// stopGrace is how long Stop waits for ffmpeg to exit after SIGINT before
// escalating to SIGKILL.
const stopGrace = 1200 * time.Millisecond

// Compile-time assertion that FFmpegSource satisfies Source.
var _ Source = (*FFmpegSource)(nil)

// FFmpegSource captures microphone audio by spawning ffmpeg and reading raw
// s16le PCM from its stdout.
type FFmpegSource struct {
	command string
}

// NewFFmpegSource creates a source that runs the given ffmpeg binary.
// An empty command means "ffmpeg" resolved via PATH.
func NewFFmpegSource(command string) *FFmpegSource {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegSource{command: command}
}

// Start spawns ffmpeg for the configured device and returns a live session
// once the process has survived the startup probe.
func (s *FFmpegSource) Start(ctx context.Context, cfg Config) (Session, error) {
	cfg = cfg.withDefaults()
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("capture: ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("capture: ffmpeg exited before capture started")
	case <-time.After(startupProbe):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		pcm:     make([]byte, cfg.BlockSize*2),
		frame:   make([]float32, 0, cfg.BlockSize),
	}, nil
}

// ffmpegSession reads fixed-size frames from a running ffmpeg process. The
// pcm and frame buffers are reused between ReadFrame calls, which is why the
// returned slice is only valid until the next call.
type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	pcm   []byte
	frame []float32

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) ReadFrame() ([]float32, error) {
	if _, err := io.ReadFull(s.stdout, s.pcm); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
			return nil, fmt.Errorf("capture: stream ended: %w", err)
		}
		return nil, fmt.Errorf("capture: read ffmpeg output: %w", err)
	}
	s.frame = audio.AppendPCMToFloat32(s.frame[:0], s.pcm)
	return s.frame, nil
}

// Stop interrupts ffmpeg, escalating to a kill when it does not exit within
// the grace period. A clean exit after SIGINT is not an error.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
	})

	return s.stopErr
}

// normalizeStopErr drops ExitError: ffmpeg killed by our own signal is the
// expected shutdown path, not a capture failure.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
