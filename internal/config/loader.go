package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
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
	if cfg.Server.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("server.listen_addr %q is invalid: %w", cfg.Server.ListenAddr, err))
		}
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.MaxRequestBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_request_bytes %d must not be negative", cfg.Server.MaxRequestBytes))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Engine
	if cfg.Engine.Workers < 0 {
		errs = append(errs, fmt.Errorf("engine.workers %d must not be negative", cfg.Engine.Workers))
	}
	if p := cfg.Engine.VocabularyPath; p != "" {
		if _, err := os.Stat(p); err != nil {
			slog.Warn("engine.vocabulary_path is not readable; loading will fail", "path", p, "err", err)
		}
	}

	// Explain
	if cfg.Explain.ContainmentTolerance < 0 {
		errs = append(errs, fmt.Errorf("explain.containment_tolerance %d must not be negative", cfg.Explain.ContainmentTolerance))
	}
	if s := cfg.Explain.LowConfidenceSimilarity; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("explain.low_confidence_similarity %.2f is out of range [0, 1]", s))
	}

	return errors.Join(errs...)
}

// LoadEnv loads .env files into the process environment. With no paths,
// ".env" in the working directory is used and a missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// Environment variables read by [ApplyEnv].
const (
	EnvListenAddr              = "MUAALEM_LISTEN_ADDR"
	EnvLogLevel                = "MUAALEM_LOG_LEVEL"
	EnvLogFormat               = "MUAALEM_LOG_FORMAT"
	EnvMaxRequestBytes         = "MUAALEM_MAX_REQUEST_BYTES"
	EnvShutdownTimeout         = "MUAALEM_SHUTDOWN_TIMEOUT"
	EnvVocabularyPath          = "MUAALEM_VOCABULARY_PATH"
	EnvWorkers                 = "MUAALEM_WORKERS"
	EnvContainmentTolerance    = "MUAALEM_CONTAINMENT_TOLERANCE"
	EnvLowConfidenceSimilarity = "MUAALEM_LOW_CONFIDENCE_SIMILARITY"
	EnvServiceName             = "MUAALEM_SERVICE_NAME"
	EnvReportLogPath           = "MUAALEM_REPORT_LOG_PATH"
)

// ApplyEnv overrides fields of cfg from environment variables found through
// lookup (normally [os.LookupEnv]) and revalidates the result. Empty values
// are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvListenAddr); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := get(EnvLogFormat); ok {
		cfg.Server.LogFormat = LogFormat(v)
	}
	if v, ok := get(EnvMaxRequestBytes); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxRequestBytes, err))
		}
		cfg.Server.MaxRequestBytes = n
	}
	if v, ok := get(EnvShutdownTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvShutdownTimeout, err))
		}
		cfg.Server.ShutdownTimeout = d
	}
	if v, ok := get(EnvVocabularyPath); ok {
		cfg.Engine.VocabularyPath = v
	}
	if v, ok := get(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvWorkers, err))
		}
		cfg.Engine.Workers = n
	}
	if v, ok := get(EnvContainmentTolerance); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvContainmentTolerance, err))
		}
		cfg.Explain.ContainmentTolerance = n
	}
	if v, ok := get(EnvLowConfidenceSimilarity); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLowConfidenceSimilarity, err))
		}
		cfg.Explain.LowConfidenceSimilarity = f
	}
	if v, ok := get(EnvServiceName); ok {
		cfg.Observe.ServiceName = v
	}
	if v, ok := get(EnvReportLogPath); ok {
		cfg.Observe.ReportLogPath = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return Validate(cfg)
}
