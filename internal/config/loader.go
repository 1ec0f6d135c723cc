package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.MinDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration_seconds %.2f must not be negative", cfg.Audio.MinDurationSeconds))
	}
	if cfg.Audio.VAD.Threshold < 0 || cfg.Audio.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("audio.vad.threshold %.3f is out of range [0, 1]", cfg.Audio.VAD.Threshold))
	}

	if err := cfg.Verification.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("verification: %w", err))
	}
	if cfg.Verification.VerificationEnabled() && cfg.Verification.EncoderURL == "" {
		errs = append(errs, errors.New("verification.encoder_url is required while verification is enabled"))
	}
	if cfg.Verification.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("verification.embedding_dimensions %d must not be negative", cfg.Verification.EmbeddingDimensions))
	}

	if !cfg.Enrollment.Store.IsValid() {
		errs = append(errs, fmt.Errorf("enrollment.store %q is invalid; valid values: file, postgres", cfg.Enrollment.Store))
	}
	if cfg.Enrollment.Store == StorePostgres {
		if cfg.Enrollment.PostgresDSN == "" {
			errs = append(errs, errors.New("enrollment.postgres_dsn is required when enrollment.store is postgres"))
		}
		if cfg.Verification.EmbeddingDimensions == 0 {
			errs = append(errs, errors.New("verification.embedding_dimensions is required when enrollment.store is postgres"))
		}
	}
	if cfg.Enrollment.SampleCount < 0 || cfg.Enrollment.SampleCount == 1 {
		errs = append(errs, fmt.Errorf("enrollment.sample_count %d must be 0 (default) or at least 2", cfg.Enrollment.SampleCount))
	}

	if cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required"))
	}

	return errors.Join(errs...)
}
