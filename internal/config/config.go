// Package config provides the configuration structure for doc2speech.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override file values.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvServerAddr   = "DOC2SPEECH_ADDR"
	EnvNATSURL      = "NATS_URL"
)

// Defaults for every tunable of the pipeline.
const (
	DefaultAddr               = ":8080"
	DefaultMaxUploadMB        = 16
	DefaultMaxConcurrentJobs  = 1
	DefaultUploadDir          = "uploads"
	DefaultStaticDir          = "static"
	DefaultTranslationURL     = "https://generativelanguage.googleapis.com"
	DefaultTranslationModel   = "gemini-2.5-flash"
	DefaultTargetLanguage     = "Romanian"
	DefaultTargetLanguageCode = "ro"
	DefaultMaxRetries         = 5
	DefaultRetryDelaySeconds  = 8
	DefaultTranslationTimeout = 300
	DefaultSpeechURL          = "https://translate.google.com"
	DefaultSegmentMaxChars    = 4800
	DefaultPauseSeconds       = 2
	DefaultSpeechWorkers      = 1
	DefaultSpeechTimeout      = 60
	DefaultConcatStrategy     = ConcatStrategyMemory
	DefaultFFmpegPath         = "ffmpeg"
	DefaultConcatTimeout      = 60
	DefaultArtifactBucket     = "DOC2SPEECH_ARTIFACTS"
	DefaultArtifactSubject    = "doc2speech.artifact.created"
)

// Concatenation strategies.
const (
	ConcatStrategyMemory = "memory"
	ConcatStrategyFFmpeg = "ffmpeg"
)

const bytesPerMB = 1024 * 1024

// Validation errors.
var (
	ErrInvalidConcatStrategy = errors.New("concat strategy must be \"memory\" or \"ffmpeg\"")
	ErrNonPositive           = errors.New("value must be positive")
	ErrNegative              = errors.New("value must not be negative")
	ErrNoExtensions          = errors.New("at least one allowed extension is required")
)

// ServerConfig holds the configuration for the HTTP surface.
type ServerConfig struct {
	Addr              string   `toml:"addr"`
	MaxUploadMB       int      `toml:"max_upload_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxConcurrentJobs int      `toml:"max_concurrent_jobs"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	UploadDir   string `toml:"upload_dir"`
	StaticDir   string `toml:"static_dir"`
	WorkDir     string `toml:"work_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// TranslationConfig holds the configuration for the generative translation service.
type TranslationConfig struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	TargetLanguage     string `toml:"target_language"`
	TargetLanguageCode string `toml:"target_language_code"`
	MaxRetries         int    `toml:"max_retries"`
	RetryDelaySeconds  int    `toml:"retry_delay_seconds"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// SpeechConfig holds the configuration for segment synthesis.
type SpeechConfig struct {
	BaseURL         string `toml:"base_url"`
	DefaultLanguage string `toml:"default_language"`
	SegmentMaxChars int    `toml:"segment_max_chars"`
	PauseSeconds    int    `toml:"pause_seconds"`
	Workers         int    `toml:"workers"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// ConcatConfig selects and tunes the audio concatenator.
type ConcatConfig struct {
	Strategy       string `toml:"strategy"`
	FFmpegPath     string `toml:"ffmpeg_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for the optional artifact mirror.
// An empty URL disables it.
type NATSConfig struct {
	URL                    string `toml:"url"`
	ArtifactBucket         string `toml:"artifact_bucket"`
	ArtifactCreatedSubject string `toml:"artifact_created_subject"`
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Paths       PathsConfig       `toml:"paths"`
	Translation TranslationConfig `toml:"translation"`
	Speech      SpeechConfig      `toml:"speech"`
	Concat      ConcatConfig      `toml:"concat"`
	NATS        NATSConfig        `toml:"nats"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finalize(&cfg)
}

// LoadFile loads the configuration from a TOML file on disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML data and applies defaults, environment overrides and
// validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return finalize(&cfg)
}

func finalize(cfg *Config) (*Config, error) {
	// A missing .env file is the normal case in production.
	_ = godotenv.Load()

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)); key != "" {
		c.Translation.APIKey = key
	}

	if addr := os.Getenv(EnvServerAddr); addr != "" {
		c.Server.Addr = addr
	}

	if url := os.Getenv(EnvNATSURL); url != "" {
		c.NATS.URL = url
	}
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	c.applyServerDefaults()
	c.applyPathDefaults()
	c.applyTranslationDefaults()
	c.applySpeechDefaults()
	c.applyConcatDefaults()

	if c.NATS.ArtifactBucket == "" {
		c.NATS.ArtifactBucket = DefaultArtifactBucket
	}

	if c.NATS.ArtifactCreatedSubject == "" {
		c.NATS.ArtifactCreatedSubject = DefaultArtifactSubject
	}
}

func (c *Config) applyServerDefaults() {
	setString(&c.Server.Addr, DefaultAddr)
	setInt(&c.Server.MaxUploadMB, DefaultMaxUploadMB)
	setInt(&c.Server.MaxConcurrentJobs, DefaultMaxConcurrentJobs)

	if len(c.Server.AllowedExtensions) == 0 {
		c.Server.AllowedExtensions = []string{"pdf", "txt"}
	}
}

func (c *Config) applyPathDefaults() {
	setString(&c.Paths.UploadDir, DefaultUploadDir)
	setString(&c.Paths.StaticDir, DefaultStaticDir)
	setString(&c.Paths.WorkDir, os.TempDir())
	setString(&c.Paths.BaseLogsDir, os.TempDir())
}

func (c *Config) applyTranslationDefaults() {
	setString(&c.Translation.BaseURL, DefaultTranslationURL)
	setString(&c.Translation.Model, DefaultTranslationModel)
	setString(&c.Translation.TargetLanguage, DefaultTargetLanguage)
	setString(&c.Translation.TargetLanguageCode, DefaultTargetLanguageCode)
	setInt(&c.Translation.MaxRetries, DefaultMaxRetries)
	setInt(&c.Translation.RetryDelaySeconds, DefaultRetryDelaySeconds)
	setInt(&c.Translation.TimeoutSeconds, DefaultTranslationTimeout)
}

func (c *Config) applySpeechDefaults() {
	setString(&c.Speech.BaseURL, DefaultSpeechURL)
	setString(&c.Speech.DefaultLanguage, DefaultTargetLanguageCode)
	setInt(&c.Speech.SegmentMaxChars, DefaultSegmentMaxChars)
	setInt(&c.Speech.PauseSeconds, DefaultPauseSeconds)
	setInt(&c.Speech.Workers, DefaultSpeechWorkers)
	setInt(&c.Speech.TimeoutSeconds, DefaultSpeechTimeout)
}

func (c *Config) applyConcatDefaults() {
	setString(&c.Concat.Strategy, DefaultConcatStrategy)
	setString(&c.Concat.FFmpegPath, DefaultFFmpegPath)
	setInt(&c.Concat.TimeoutSeconds, DefaultConcatTimeout)
}

// Validate rejects values the pipeline cannot run with. The translation API
// key is deliberately not checked here: without it only the translate branch
// is unavailable.
func (c *Config) Validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"server.max_upload_mb", c.Server.MaxUploadMB},
		{"server.max_concurrent_jobs", c.Server.MaxConcurrentJobs},
		{"translation.max_retries", c.Translation.MaxRetries},
		{"translation.timeout_seconds", c.Translation.TimeoutSeconds},
		{"translation.retry_delay_seconds", c.Translation.RetryDelaySeconds},
		{"speech.segment_max_chars", c.Speech.SegmentMaxChars},
		{"speech.workers", c.Speech.Workers},
		{"speech.timeout_seconds", c.Speech.TimeoutSeconds},
		{"concat.timeout_seconds", c.Concat.TimeoutSeconds},
	}

	for _, positive := range positives {
		if positive.value <= 0 {
			return fmt.Errorf("%w: %s = %d", ErrNonPositive, positive.name, positive.value)
		}
	}

	if c.Speech.PauseSeconds < 0 {
		return fmt.Errorf("%w: speech.pause_seconds = %d", ErrNegative, c.Speech.PauseSeconds)
	}

	if c.Concat.Strategy != ConcatStrategyMemory && c.Concat.Strategy != ConcatStrategyFFmpeg {
		return fmt.Errorf("%w: got %q", ErrInvalidConcatStrategy, c.Concat.Strategy)
	}

	if len(c.Server.AllowedExtensions) == 0 {
		return ErrNoExtensions
	}

	return nil
}

// EnsureDirectories creates every directory the service writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.StaticDir, c.Paths.WorkDir, c.Paths.BaseLogsDir} {
		err := os.MkdirAll(dir, 0o750)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int {
	return s.MaxUploadMB * bytesPerMB
}

// RetryDelay returns the pause between transient translation failures.
func (t TranslationConfig) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-attempt translation request timeout.
func (t TranslationConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Pause returns the minimum interval between synthesis calls.
func (s SpeechConfig) Pause() time.Duration {
	return time.Duration(s.PauseSeconds) * time.Second
}

// Timeout returns the per-request synthesis timeout.
func (s SpeechConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Timeout returns the wall-clock limit for the external concatenation tool.
func (c ConcatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func setString(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field == 0 {
		*field = fallback
	}
}
