// Package config defines the configuration schema for the muaalem analysis
// server.
//
// Configuration is loaded from a YAML file (see [Load]) and may be overridden
// by MUAALEM_* environment variables (see [ApplyEnv]). The top-level type is
// [Config]; every section has its own struct. Zero values are replaced by
// defaults in [Config.WithDefaults].
package config

import "time"

// LogLevel controls the minimum severity of emitted log records.
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

// LogFormat selects the slog handler used for output.
type LogFormat string

const (
	// LogFormatText writes logfmt-style key=value records.
	LogFormatText LogFormat = "text"

	// LogFormatJSON writes one JSON object per record.
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON:
		return true
	}
	return false
}

// Defaults applied by [Config.WithDefaults].
const (
	DefaultListenAddr              = ":8080"
	DefaultMaxRequestBytes         = 8 << 20
	DefaultShutdownTimeout         = 15 * time.Second
	DefaultWorkers                 = 4
	DefaultContainmentTolerance    = 2
	DefaultLowConfidenceSimilarity = 0.6
	DefaultServiceName             = "muaalem"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Explain ExplainConfig `yaml:"explain"`
	Observe ObserveConfig `yaml:"observe"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server binds to (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log severity. Reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`

	// MaxRequestBytes caps the size of an analysis request body.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig configures the decoding engine.
type EngineConfig struct {
	// VocabularyPath points to a YAML vocabulary file. Empty selects the
	// built-in vocabulary.
	VocabularyPath string `yaml:"vocabulary_path"`

	// Workers bounds how many batch items are analysed concurrently.
	Workers int `yaml:"workers"`
}

// ExplainConfig tunes the word projection heuristics. Reloadable.
type ExplainConfig struct {
	// ContainmentTolerance is the maximum rune length difference for which
	// one phoneme group is considered to contain another.
	ContainmentTolerance int `yaml:"containment_tolerance"`

	// LowConfidenceSimilarity is the Jaro-Winkler similarity below which a
	// projected word is flagged as low confidence. Range [0, 1].
	LowConfidenceSimilarity float64 `yaml:"low_confidence_similarity"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name resource.
	ServiceName string `yaml:"service_name"`

	// ReportLogPath, when set, appends a summary of every report to this
	// file as JSON lines.
	ReportLogPath string `yaml:"report_log_path"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = LogFormatText
	}
	if c.Server.MaxRequestBytes == 0 {
		c.Server.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = DefaultWorkers
	}
	if c.Explain.ContainmentTolerance == 0 {
		c.Explain.ContainmentTolerance = DefaultContainmentTolerance
	}
	if c.Explain.LowConfidenceSimilarity == 0 {
		c.Explain.LowConfidenceSimilarity = DefaultLowConfidenceSimilarity
	}
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = DefaultServiceName
	}
	return c
}
