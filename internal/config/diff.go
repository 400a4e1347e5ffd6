package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; the rest are
// reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ExplainChanged is true when the word projection tuning changed.
	ExplainChanged bool
	NewExplain     ExplainConfig

	// EngineChanged is true when the vocabulary or worker count changed.
	// The server rebuilds its analyzer in that case.
	EngineChanged bool

	// RestartRequired lists the YAML keys of changed fields that only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether any field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ExplainChanged || d.EngineChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Both configs
// are compared after [Config.WithDefaults] so an omitted key equals its
// default.
func Diff(old, new *Config) ConfigDiff {
	o, n := old.WithDefaults(), new.WithDefaults()
	d := ConfigDiff{}

	if o.Server.LogLevel != n.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = n.Server.LogLevel
	}
	if o.Explain != n.Explain {
		d.ExplainChanged = true
		d.NewExplain = n.Explain
	}
	if o.Engine != n.Engine {
		d.EngineChanged = true
	}

	if o.Server.ListenAddr != n.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if o.Server.LogFormat != n.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server.log_format")
	}
	if o.Server.MaxRequestBytes != n.Server.MaxRequestBytes {
		d.RestartRequired = append(d.RestartRequired, "server.max_request_bytes")
	}
	if o.Server.ShutdownTimeout != n.Server.ShutdownTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.shutdown_timeout")
	}
	if o.Observe.ServiceName != n.Observe.ServiceName {
		d.RestartRequired = append(d.RestartRequired, "observe.service_name")
	}
	if o.Observe.ReportLogPath != n.Observe.ReportLogPath {
		d.RestartRequired = append(d.RestartRequired, "observe.report_log_path")
	}
	return d
}
