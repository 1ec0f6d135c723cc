// Package config provides the configuration schema, loader, and file watcher
// for the MoSheng dictation daemon.
package config

import (
	"log/slog"
	"time"

	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/audio"
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

// Level converts l to an [slog.Level], defaulting to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StoreKind selects the enrollment persistence backend.
type StoreKind string

const (
	// StoreFile persists enrollment as JSON files under the data directory.
	StoreFile StoreKind = "file"

	// StorePostgres persists enrollment in PostgreSQL with pgvector columns.
	StorePostgres StoreKind = "postgres"
)

// IsValid reports whether k is a recognised store kind.
func (k StoreKind) IsValid() bool {
	return k == StoreFile || k == StorePostgres
}

// Config is the root configuration structure for MoSheng.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Audio        AudioConfig        `yaml:"audio"`
	Verification VerificationConfig `yaml:"verification"`
	Enrollment   EnrollmentConfig   `yaml:"enrollment"`
	STT          STTConfig          `yaml:"stt"`
	Text         TextConfig         `yaml:"text"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on.
	// Defaults to "127.0.0.1:4830" so the daemon stays local-only.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture-format expectations and pre-verification gates.
type AudioConfig struct {
	// SampleRate is the expected input sample rate in Hz. Buffers at other
	// rates are resampled. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// MinDurationSeconds drops utterances shorter than this before any
	// inference runs. Defaults to 0.3.
	MinDurationSeconds float64 `yaml:"min_duration_seconds"`

	// VAD configures the energy-based speech gate.
	VAD VADConfig `yaml:"vad"`
}

// VADConfig controls the pre-pipeline energy gate.
type VADConfig struct {
	// Enabled turns the gate on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Threshold is the RMS level a chunk must reach to count as speech.
	// Zero means the detector default.
	Threshold float64 `yaml:"threshold"`
}

// VerificationConfig holds speaker-verification settings.
type VerificationConfig struct {
	// Enabled turns speaker filtering on. When false every utterance is
	// transcribed unfiltered. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Thresholds are the cosine-similarity decision boundaries. Reloadable
	// at runtime via the config watcher.
	Thresholds verify.Thresholds `yaml:",inline"`

	// EncoderURL is the base URL of the speaker-embedding sidecar.
	EncoderURL string `yaml:"encoder_url"`

	// EmbeddingDimensions is the expected embedding vector size. Required
	// when the postgres store is used (it sizes the vector columns).
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// EnrollmentConfig selects and configures the enrollment store.
type EnrollmentConfig struct {
	// Store selects the backend. Defaults to "file".
	Store StoreKind `yaml:"store"`

	// DataDir is the directory for the file store. Defaults to
	// "~/.mosheng" resolved at startup.
	DataDir string `yaml:"data_dir"`

	// PostgresDSN is the connection string for the postgres store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SampleCount is how many voice samples enrollment collects.
	// Zero means the default of 3.
	SampleCount int `yaml:"sample_count"`
}

// STTConfig configures the transcription backend.
type STTConfig struct {
	// ModelPath is the whisper.cpp model file. Required.
	ModelPath string `yaml:"model_path"`

	// Language hints the transcription language ("zh", "en", "auto").
	Language string `yaml:"language"`
}

// TextConfig configures post-processing of transcribed text.
type TextConfig struct {
	// RemoveFillers strips filler words. Defaults to true.
	RemoveFillers *bool `yaml:"remove_fillers"`

	// SmartPunctuation enables punctuation cleanup and deferred periods.
	// Defaults to true.
	SmartPunctuation *bool `yaml:"smart_punctuation"`

	// VocabularyPath is an optional file of user terms, one per line, used
	// for phonetic correction of mis-transcribed words.
	VocabularyPath string `yaml:"vocabulary_path"`
}

// Default values applied by [applyDefaults].
const (
	DefaultListenAddr      = "127.0.0.1:4830"
	DefaultMinDuration     = 0.3
	DefaultWatcherInterval = 5 * time.Second
)

// applyDefaults fills zero values with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Audio.MinDurationSeconds == 0 {
		cfg.Audio.MinDurationSeconds = DefaultMinDuration
	}
	if cfg.Verification.Thresholds == (verify.Thresholds{}) {
		cfg.Verification.Thresholds = verify.DefaultThresholds()
	}
	if cfg.Enrollment.Store == "" {
		cfg.Enrollment.Store = StoreFile
	}
	if cfg.STT.Language == "" {
		cfg.STT.Language = "auto"
	}
}

// VADEnabled resolves the tri-state enabled flag, defaulting to true.
func (c AudioConfig) VADEnabled() bool {
	return c.VAD.Enabled == nil || *c.VAD.Enabled
}

// VerificationEnabled resolves the tri-state enabled flag, defaulting to true.
func (c VerificationConfig) VerificationEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RemoveFillersEnabled resolves the tri-state flag, defaulting to true.
func (c TextConfig) RemoveFillersEnabled() bool {
	return c.RemoveFillers == nil || *c.RemoveFillers
}

// SmartPunctuationEnabled resolves the tri-state flag, defaulting to true.
func (c TextConfig) SmartPunctuationEnabled() bool {
	return c.SmartPunctuation == nil || *c.SmartPunctuation
}
