package config

import (
	"os"
	"path/filepath"
)

// Typed views over the well-known sections. Unknown sections (integration
// credentials saved by the UI) round-trip through the store untouched.

// ServerSettings configures the loopback HTTP server.
type ServerSettings struct {
	Port int `yaml:"port"`
}

// UpdateSettings configures artifact staging and scheduled checks.
type UpdateSettings struct {
	StagingDir    string `yaml:"staging_dir"`
	CheckSchedule string `yaml:"check_schedule"`
	AutoApply     bool   `yaml:"auto_apply"`
}

// LoggingSettings configures the structured logger.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingSettings configures the OpenTelemetry provider.
type TracingSettings struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
	UseTLS     bool    `yaml:"use_tls"`
}

// DefaultPort is the loopback HTTP port when no setting is present.
const DefaultPort = 8787

// Server returns the server settings with defaults applied. Decode problems
// fall back to defaults; configuration must not be able to prevent startup.
func (s *Store) Server(doc Document) ServerSettings {
	settings := ServerSettings{Port: DefaultPort}
	if err := decodeSection(doc, "server", &settings); err != nil {
		s.logger.Warn("Ignoring malformed server settings", "error", err)
		return ServerSettings{Port: DefaultPort}
	}
	if settings.Port <= 0 || settings.Port > 65535 {
		settings.Port = DefaultPort
	}
	return settings
}

// Update returns the update settings with defaults applied. The default
// staging directory sits under the system temp directory, deliberately away
// from the persistent data directory.
func (s *Store) Update(doc Document) UpdateSettings {
	settings := UpdateSettings{
		StagingDir:    filepath.Join(os.TempDir(), "loopdesk-staging"),
		CheckSchedule: "*/10 * * * *",
	}
	if err := decodeSection(doc, "update", &settings); err != nil {
		s.logger.Warn("Ignoring malformed update settings", "error", err)
	}
	return settings
}

// Logging returns the logging settings with defaults applied.
func (s *Store) Logging(doc Document) LoggingSettings {
	settings := LoggingSettings{Level: "info", Format: "text"}
	if err := decodeSection(doc, "logging", &settings); err != nil {
		s.logger.Warn("Ignoring malformed logging settings", "error", err)
	}
	return settings
}

// Tracing returns the tracing settings with defaults applied.
func (s *Store) Tracing(doc Document) TracingSettings {
	settings := TracingSettings{Exporter: "stdout", SampleRate: 1.0}
	if err := decodeSection(doc, "tracing", &settings); err != nil {
		s.logger.Warn("Ignoring malformed tracing settings", "error", err)
	}
	return settings
}
