package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; the whisper pipeline requires 16000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is unsupported; the pipeline is mono", cfg.Audio.Channels))
	}
	if cfg.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size must be positive, got %d", cfg.Audio.BlockSize))
	}

	// VAD
	if !cfg.VAD.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: silero, energy", cfg.VAD.Engine))
	}
	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range (0, 1)", cfg.VAD.Threshold))
	}
	if cfg.VAD.Engine == VADSilero {
		if cfg.VAD.ModelPath == "" {
			errs = append(errs, errors.New("vad.model_path is required when vad.engine is silero"))
		}
		if cfg.Audio.BlockSize > 0 && cfg.Audio.BlockSize != 512 {
			errs = append(errs, fmt.Errorf("audio.block_size must be 512 when vad.engine is silero, got %d", cfg.Audio.BlockSize))
		}
	}
	if cfg.VAD.Engine == VADEnergy && cfg.VAD.EnergyFloor > 0 && cfg.VAD.EnergyCeiling > 0 &&
		cfg.VAD.EnergyCeiling <= cfg.VAD.EnergyFloor {
		errs = append(errs, fmt.Errorf("vad.energy_ceiling %.4f must exceed vad.energy_floor %.4f", cfg.VAD.EnergyCeiling, cfg.VAD.EnergyFloor))
	}

	// Recording
	if cfg.Recording.PreRoll.Std() < 0 {
		errs = append(errs, errors.New("recording.pre_roll must not be negative"))
	}
	if cfg.Recording.SilenceDuration.Std() <= 0 {
		errs = append(errs, errors.New("recording.silence_duration must be positive"))
	}
	if cfg.Recording.MinSpeechDuration.Std() <= 0 {
		errs = append(errs, errors.New("recording.min_speech_duration must be positive"))
	}
	if cfg.Recording.MaxDuration.Std() <= 0 {
		errs = append(errs, errors.New("recording.max_duration must be positive"))
	}
	if cfg.Recording.MaxDuration.Std() > 0 && cfg.Recording.MaxDuration.Std() <= cfg.Recording.SilenceDuration.Std() {
		errs = append(errs, fmt.Errorf("recording.max_duration %v must exceed recording.silence_duration %v",
			cfg.Recording.MaxDuration.Std(), cfg.Recording.SilenceDuration.Std()))
	}

	// Transcription
	if cfg.Transcription.ModelPath == "" {
		errs = append(errs, errors.New("transcription.model_path is required"))
	}
	if cfg.Transcription.Threads < 0 {
		errs = append(errs, fmt.Errorf("transcription.threads must not be negative, got %d", cfg.Transcription.Threads))
	}

	// Clipboard
	if cfg.Clipboard.Retries < 1 {
		errs = append(errs, fmt.Errorf("clipboard.retries must be at least 1, got %d", cfg.Clipboard.Retries))
	}
	if cfg.Clipboard.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("clipboard.timeout must be positive"))
	}

	// Paste
	if cfg.Paste.Enabled && cfg.Paste.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("paste.timeout must be positive when paste is enabled"))
	}

	// History
	if cfg.History.Enabled && cfg.History.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("history.max_entries must be positive when history is enabled, got %d", cfg.History.MaxEntries))
	}

	return errors.Join(errs...)
}
