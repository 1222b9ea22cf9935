// Package config provides the configuration schema and loader for the
// stt-clipboard daemon. The configuration is loaded from a YAML file once at
// startup, validated as a whole, and treated as immutable afterwards.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VADEngine selects the voice activity detection backend.
type VADEngine string

const (
	// VADSilero runs the Silero ONNX model (accurate, needs ONNX Runtime).
	VADSilero VADEngine = "silero"

	// VADEnergy uses RMS energy levels (coarse, no native dependencies).
	VADEnergy VADEngine = "energy"
)

// IsValid reports whether e is a recognised VAD engine.
func (e VADEngine) IsValid() bool {
	return e == VADSilero || e == VADEnergy
}

// Duration wraps time.Duration so YAML values can be written as "1.2s" or
// "500ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var f float64
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(f * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Recording     RecordingConfig     `yaml:"recording"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Punctuation   PunctuationConfig   `yaml:"punctuation"`
	Clipboard     ClipboardConfig     `yaml:"clipboard"`
	Paste         PasteConfig         `yaml:"paste"`
	Trigger       TriggerConfig       `yaml:"trigger"`
	History       HistoryConfig       `yaml:"history"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig holds logging and local HTTP settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HTTPAddr is the address serving /metrics, /healthz, and /readyz
	// (e.g. "127.0.0.1:9090"). Empty disables the HTTP surface.
	HTTPAddr string `yaml:"http_addr"`
}

// AudioConfig describes the microphone capture stream.
type AudioConfig struct {
	// SampleRate in Hz. Whisper requires 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels of captured audio. The pipeline is mono.
	Channels int `yaml:"channels"`

	// BlockSize is the per-frame sample count. 512 matches the Silero
	// window at 16 kHz.
	BlockSize int `yaml:"block_size"`

	// InputFormat is the ffmpeg capture backend (e.g. "pulse", "alsa").
	InputFormat string `yaml:"input_format"`

	// InputDevice is the device within the format (e.g. "default").
	InputDevice string `yaml:"input_device"`

	// FFmpegPath overrides the ffmpeg binary. Empty resolves via PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// VADConfig selects and tunes the voice activity gate.
type VADConfig struct {
	// Engine picks the backend.
	Engine VADEngine `yaml:"engine"`

	// Threshold is the speech probability above which a frame counts as
	// speech.
	Threshold float64 `yaml:"threshold"`

	// ModelPath is the Silero ONNX model file. Required for the silero
	// engine.
	ModelPath string `yaml:"model_path"`

	// ORTLibrary is an optional path to libonnxruntime.so.
	ORTLibrary string `yaml:"ort_library"`

	// EnergyFloor and EnergyCeiling tune the energy engine's RMS range.
	EnergyFloor   float64 `yaml:"energy_floor"`
	EnergyCeiling float64 `yaml:"energy_ceiling"`
}

// RecordingConfig holds the segmentation timing parameters.
type RecordingConfig struct {
	// PreRoll is the rolling audio kept before speech onset.
	PreRoll Duration `yaml:"pre_roll"`

	// SilenceDuration is the consecutive silence ending an utterance.
	SilenceDuration Duration `yaml:"silence_duration"`

	// MinSpeechDuration discards shorter detections as false starts.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`

	// MaxDuration is the hard cutoff on utterance length.
	MaxDuration Duration `yaml:"max_duration"`
}

// TranscriptionConfig configures the whisper model.
type TranscriptionConfig struct {
	// ModelPath is the ggml model file. Required.
	ModelPath string `yaml:"model_path"`

	// Language pins transcription ("fr", "en"); empty auto-detects.
	Language string `yaml:"language"`

	// Threads caps whisper CPU threads. Zero means all cores.
	Threads int `yaml:"threads"`

	// Warmup runs a priming inference at startup.
	Warmup bool `yaml:"warmup"`
}

// PunctuationConfig configures text post-processing.
type PunctuationConfig struct {
	// Enabled turns formatting on. When off, raw transcription is used.
	Enabled bool `yaml:"enabled"`

	// FrenchSpacing applies French typography for French or undetected
	// languages.
	FrenchSpacing bool `yaml:"french_spacing"`
}

// ClipboardConfig tunes the copy stage.
type ClipboardConfig struct {
	// Timeout bounds each copy attempt.
	Timeout Duration `yaml:"timeout"`

	// Retries is the maximum number of copy attempts.
	Retries int `yaml:"retries"`

	// BackoffBase is the delay before the second attempt; doubled after.
	BackoffBase Duration `yaml:"backoff_base"`
}

// PasteConfig tunes the auto-paste stage.
type PasteConfig struct {
	// Enabled allows paste triggers to inject keystrokes.
	Enabled bool `yaml:"enabled"`

	// Delay between the copy completing and the keystroke, giving the
	// target window time to regain focus.
	Delay Duration `yaml:"delay"`

	// Timeout bounds the keystroke injection.
	Timeout Duration `yaml:"timeout"`
}

// TriggerConfig configures the control socket.
type TriggerConfig struct {
	// SocketPath is the Unix socket receiving trigger tokens. Empty
	// derives a per-user default under XDG_RUNTIME_DIR.
	SocketPath string `yaml:"socket_path"`
}

// HistoryConfig configures the optional transcription log.
type HistoryConfig struct {
	// Enabled turns history persistence on.
	Enabled bool `yaml:"enabled"`

	// Path is the JSON history file. Empty derives a default under the
	// user data directory.
	Path string `yaml:"path"`

	// MaxEntries bounds the log; older entries are evicted.
	MaxEntries int `yaml:"max_entries"`
}

// NotificationsConfig configures desktop notifications.
type NotificationsConfig struct {
	// Enabled turns notify-send notifications on.
	Enabled bool `yaml:"enabled"`

	// Expiry is how long notifications stay visible.
	Expiry Duration `yaml:"expiry"`
}

// Default returns a Config populated with the daemon's defaults. Loading a
// file overrides only the fields it sets.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: LogInfo,
			HTTPAddr: "127.0.0.1:9090",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BlockSize:  512,
		},
		VAD: VADConfig{
			Engine:    VADSilero,
			Threshold: 0.5,
		},
		Recording: RecordingConfig{
			PreRoll:           Duration(500 * time.Millisecond),
			SilenceDuration:   Duration(1200 * time.Millisecond),
			MinSpeechDuration: Duration(300 * time.Millisecond),
			MaxDuration:       Duration(30 * time.Second),
		},
		Transcription: TranscriptionConfig{
			Warmup: true,
		},
		Punctuation: PunctuationConfig{
			Enabled:       true,
			FrenchSpacing: true,
		},
		Clipboard: ClipboardConfig{
			Timeout:     Duration(2 * time.Second),
			Retries:     3,
			BackoffBase: Duration(100 * time.Millisecond),
		},
		Paste: PasteConfig{
			Enabled: true,
			Delay:   Duration(100 * time.Millisecond),
			Timeout: Duration(2 * time.Second),
		},
		History: HistoryConfig{
			MaxEntries: 100,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Expiry:  Duration(2 * time.Second),
		},
	}
}
