// Package capture abstracts microphone input as a stream of fixed-size
// float32 frames. The production backend shells out to ffmpeg; tests use
// in-memory fakes that implement the same Source and Session interfaces.
package capture

import (
	"context"
	"time"
)

// Defaults for 16 kHz mono capture. BlockSize of 512 samples matches the
// Silero VAD window (32 ms at 16 kHz).
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBlockSize  = 512
)

// Config describes the audio stream a Source must deliver.
type Config struct {
	// SampleRate in Hz. Zero means DefaultSampleRate.
	SampleRate int
	// Channels must be 1 for the transcription pipeline. Zero means mono.
	Channels int
	// BlockSize is the number of samples per frame returned by ReadFrame.
	// Zero means DefaultBlockSize.
	BlockSize int
	// InputFormat is the capture backend format (e.g. "pulse", "alsa").
	InputFormat string
	// InputDevice is the device name within the format (e.g. "default").
	InputDevice string
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	return c
}

// FrameDuration is the wall-clock length of one frame under this config.
func (c Config) FrameDuration() time.Duration {
	c = c.withDefaults()
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Source opens capture sessions against a microphone backend.
type Source interface {
	// Start begins capturing and returns a live Session. The context bounds
	// the whole session: cancelling it terminates capture.
	Start(ctx context.Context, cfg Config) (Session, error)
}

// Session is one live capture stream.
type Session interface {
	// ReadFrame blocks until a full frame of BlockSize mono float32 samples
	// is available and returns it. The returned slice is only valid until
	// the next ReadFrame call; callers that keep audio must copy it.
	// It returns an error when the stream ends or the backend fails.
	ReadFrame() ([]float32, error)

	// Stop terminates capture and releases the backend. Safe to call more
	// than once; ReadFrame calls after Stop return an error.
	Stop() error
}
