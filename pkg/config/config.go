// Package config loads the agent's configuration file. The grammar is
// a deliberately minimal key=value format, not YAML or TOML: one
// assignment per line, '#' starts a comment, leading/trailing
// whitespace is trimmed, and unrecognized keys are ignored rather than
// rejected.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	minSamplingIntervalMS = 1
	maxSamplingIntervalMS = 3_600_000
	maxStringFieldLength  = 4096
)

// Mode selects whether the agent is learning a baseline or actively
// detecting against one.
type Mode string

const (
	ModeBaseline Mode = "baseline"
	ModeDetect   Mode = "detect"
)

// Config is the agent's effective configuration.
type Config struct {
	SamplingIntervalMS uint32 `yaml:"sampling_interval_ms"`
	TelemetryRootPath  string `yaml:"telemetry_root_path"`
	CloudEndpointURL   string `yaml:"cloud_endpoint_url"`
	BaselineDBPath     string `yaml:"baseline_db_path"`
	Mode               Mode   `yaml:"mode"`

	// EmergencyStopFile is an optional local kill-switch: if set, the
	// agent polls for the file's existence and stops when it appears,
	// independent of SIGINT/SIGTERM.
	EmergencyStopFile string `yaml:"emergency_stop_file,omitempty"`

	// MetricsListenAddr is an optional address for the internal
	// Prometheus exposition HTTP server. Empty disables it.
	MetricsListenAddr string `yaml:"metrics_listen_addr,omitempty"`
}

// Load reads and parses the config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads the key=value grammar from r and validates the result.
func Parse(r io.Reader) (Config, error) {
	raw := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		raw[key] = value
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}

	return validate(raw)
}

func validate(raw map[string]string) (Config, error) {
	var missing []string
	var cfg Config

	intervalStr, ok := raw["sampling_interval_ms"]
	if !ok {
		missing = append(missing, "sampling_interval_ms")
	} else {
		interval, err := strconv.ParseUint(intervalStr, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: sampling_interval_ms: invalid integer %q: %w", intervalStr, err)
		}
		if interval < minSamplingIntervalMS || interval > maxSamplingIntervalMS {
			return Config{}, fmt.Errorf("config: sampling_interval_ms must be between %d and %d, got %d",
				minSamplingIntervalMS, maxSamplingIntervalMS, interval)
		}
		cfg.SamplingIntervalMS = uint32(interval)
	}

	for _, field := range []struct {
		key string
		dst *string
	}{
		{"telemetry_root_path", &cfg.TelemetryRootPath},
		{"cloud_endpoint_url", &cfg.CloudEndpointURL},
		{"baseline_db_path", &cfg.BaselineDBPath},
	} {
		value, ok := raw[field.key]
		if !ok || value == "" {
			missing = append(missing, field.key)
			continue
		}
		if len(value) > maxStringFieldLength {
			return Config{}, fmt.Errorf("config: %s exceeds maximum length of %d bytes", field.key, maxStringFieldLength)
		}
		*field.dst = value
	}

	modeStr, ok := raw["mode"]
	if !ok {
		missing = append(missing, "mode")
	} else {
		switch Mode(modeStr) {
		case ModeBaseline, ModeDetect:
			cfg.Mode = Mode(modeStr)
		default:
			return Config{}, fmt.Errorf("config: mode must be %q or %q, got %q", ModeBaseline, ModeDetect, modeStr)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required key(s): %s", strings.Join(missing, ", "))
	}

	cfg.EmergencyStopFile = raw["emergency_stop_file"]
	cfg.MetricsListenAddr = raw["metrics_listen_addr"]

	return cfg, nil
}

// Dump renders the effective configuration as YAML for operator
// debugging. The load-side grammar stays the bespoke key=value format;
// this is purely an inspection aid.
func (c Config) Dump() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal dump: %w", err)
	}
	return string(b), nil
}
