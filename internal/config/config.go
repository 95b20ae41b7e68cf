/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoDataDir is returned when neither MARQUEE_DATA_DIR nor HOME is set.
var ErrNoDataDir = errors.New("no data directory: set HOME or MARQUEE_DATA_DIR")

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment  string
	DataDir      string
	SettingsFile string
	HTTPBind     string
	HTTPPort     int
	DBBackend    DatabaseBackend
	DBDSN        string
	// PGNotifyChannel is LISTENed on for catalogue changes (postgres only).
	PGNotifyChannel string
	// PlaybackLogDSN holds the viewlog table. Empty shares the catalogue
	// database; sqlite defaults to a separate file so that logging a
	// presentation never touches the watched catalogue file.
	PlaybackLogDSN string

	// Command transports; an empty address disables the transport.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisChannel   string
	NATSURL        string
	NATSToken      string
	NATSSubject    string
	MQTTBroker     string
	MQTTDeviceID   string
	MQTTUsername   string
	MQTTPassword   string
	WebsocketInput bool

	// TV control
	CECBinary  string
	CECDevices []string
	IRBinary   string
	IRProtocol string
	IRScancode string

	// Presentation
	MediaPlayerBin    string
	MediaPlayerArgs   []string
	BrowserBin        string
	BrowserControlURL string
	BrowserHeadless   bool
	StandbyImage      string
	SplashURL         string
	HotspotURL        string

	// S3 object storage for s3:// assets
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	dataDir := getEnvAny([]string{"MARQUEE_DATA_DIR", "SCREENLY_DATA_DIR"}, "")
	if dataDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return nil, ErrNoDataDir
		}
		dataDir = filepath.Join(home, ".marquee")
	}

	host, _ := os.Hostname()

	cfg := &Config{
		Environment:     getEnvAny([]string{"MARQUEE_ENV", "SCREENLY_ENV"}, "production"),
		DataDir:         dataDir,
		SettingsFile:    getEnvAny([]string{"MARQUEE_SETTINGS_FILE", "SCREENLY_SETTINGS_FILE"}, filepath.Join(dataDir, "settings.yaml")),
		HTTPBind:        getEnvAny([]string{"MARQUEE_HTTP_BIND", "SCREENLY_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:        getEnvIntAny([]string{"MARQUEE_HTTP_PORT", "SCREENLY_HTTP_PORT"}, 8090),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"MARQUEE_DB_BACKEND", "SCREENLY_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:           getEnvAny([]string{"MARQUEE_DB_DSN", "SCREENLY_DB_DSN"}, ""),
		PGNotifyChannel: getEnvAny([]string{"MARQUEE_PG_NOTIFY_CHANNEL"}, "marquee_config_changed"),
		PlaybackLogDSN:  getEnvAny([]string{"MARQUEE_VIEWLOG_DSN", "SCREENLY_VIEWLOG_DSN"}, ""),

		RedisAddr:      getEnvAny([]string{"MARQUEE_REDIS_ADDR", "SCREENLY_REDIS_ADDR"}, ""),
		RedisPassword:  getEnvAny([]string{"MARQUEE_REDIS_PASSWORD", "SCREENLY_REDIS_PASSWORD"}, ""),
		RedisDB:        getEnvIntAny([]string{"MARQUEE_REDIS_DB", "SCREENLY_REDIS_DB"}, 0),
		RedisChannel:   getEnvAny([]string{"MARQUEE_REDIS_CHANNEL"}, "marquee:commands"),
		NATSURL:        getEnvAny([]string{"MARQUEE_NATS_URL"}, ""),
		NATSToken:      getEnvAny([]string{"MARQUEE_NATS_TOKEN"}, ""),
		NATSSubject:    getEnvAny([]string{"MARQUEE_NATS_SUBJECT"}, "marquee.commands"),
		MQTTBroker:     getEnvAny([]string{"MARQUEE_MQTT_BROKER"}, ""),
		MQTTDeviceID:   getEnvAny([]string{"MARQUEE_DEVICE_ID", "SCREENLY_DEVICE_ID"}, host),
		MQTTUsername:   getEnvAny([]string{"MARQUEE_MQTT_USERNAME"}, ""),
		MQTTPassword:   getEnvAny([]string{"MARQUEE_MQTT_PASSWORD"}, ""),
		WebsocketInput: getEnvBoolAny([]string{"MARQUEE_WS_COMMANDS"}, true),

		CECBinary:  getEnvAny([]string{"MARQUEE_CEC_BIN"}, "cec-ctl"),
		CECDevices: getEnvListAny([]string{"MARQUEE_CEC_DEVICES"}, []string{"/dev/cec0", "/dev/cec1"}),
		IRBinary:   getEnvAny([]string{"MARQUEE_IR_BIN"}, "ir-ctl"),
		IRProtocol: getEnvAny([]string{"MARQUEE_IR_PROTOCOL", "SCREENLY_IR_PROTOCOL"}, ""),
		IRScancode: getEnvAny([]string{"MARQUEE_IR_SCANCODE", "SCREENLY_IR_SCANCODE"}, ""),

		MediaPlayerBin:    getEnvAny([]string{"MARQUEE_PLAYER_BIN"}, "ffplay"),
		MediaPlayerArgs:   getEnvListAny([]string{"MARQUEE_PLAYER_ARGS"}, []string{"-autoexit", "-fs", "-nostats", "-loglevel", "warning"}),
		BrowserBin:        getEnvAny([]string{"MARQUEE_BROWSER_BIN"}, ""),
		BrowserControlURL: getEnvAny([]string{"MARQUEE_BROWSER_CONTROL_URL"}, ""),
		BrowserHeadless:   getEnvBoolAny([]string{"MARQUEE_BROWSER_HEADLESS"}, false),
		StandbyImage:      getEnvAny([]string{"MARQUEE_STANDBY_IMAGE", "SCREENLY_STANDBY_IMAGE"}, ""),
		SplashURL:         getEnvAny([]string{"MARQUEE_SPLASH_URL", "SCREENLY_SPLASH_URL"}, "http://127.0.0.1/splash-page"),
		HotspotURL:        getEnvAny([]string{"MARQUEE_HOTSPOT_URL", "SCREENLY_HOTSPOT_URL"}, "http://127.0.0.1/hotspot"),

		S3Region:          getEnvAny([]string{"MARQUEE_S3_REGION", "AWS_REGION"}, ""),
		S3Endpoint:        getEnvAny([]string{"MARQUEE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"MARQUEE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MARQUEE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"MARQUEE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MARQUEE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MARQUEE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("MARQUEE_DB_DSN must be provided for the %s backend", cfg.DBBackend)
		}
		cfg.DBDSN = filepath.Join(dataDir, "marquee.db")
	}
	if cfg.PlaybackLogDSN == "" && cfg.DBBackend == DatabaseSQLite && cfg.DBDSN != ":memory:" {
		cfg.PlaybackLogDSN = filepath.Join(dataDir, "viewlog.db")
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("MARQUEE_TRACING_SAMPLE_RATE must be within [0, 1], got %v", cfg.TracingSampleRate)
	}

	if (cfg.IRProtocol == "") != (cfg.IRScancode == "") {
		return nil, fmt.Errorf("MARQUEE_IR_PROTOCOL and MARQUEE_IR_SCANCODE must be set together")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// SQLitePath returns the database file when the sqlite backend is in use.
func (c *Config) SQLitePath() (string, bool) {
	if c == nil || c.DBBackend != DatabaseSQLite || c.DBDSN == ":memory:" {
		return "", false
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(c.DBDSN, "file:"), "?")
	return path, path != ""
}

// HTTPAddr is the listen address of the status server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// EnsureDataDir creates the data directory.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
	}
	return nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"SCREENLY_ENV":         "use MARQUEE_ENV",
		"SCREENLY_DATA_DIR":    "use MARQUEE_DATA_DIR",
		"SCREENLY_DB_DSN":      "use MARQUEE_DB_DSN",
		"SCREENLY_REDIS_ADDR":  "use MARQUEE_REDIS_ADDR",
		"SCREENLY_IR_PROTOCOL": "use MARQUEE_IR_PROTOCOL",
		"SCREENLY_IR_SCANCODE": "use MARQUEE_IR_SCANCODE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvListAny splits the first set value on commas (or whitespace for
// argument lists), or returns def.
func getEnvListAny(keys []string, def []string) []string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
			if len(fields) > 0 {
				return fields
			}
		}
	}
	return def
}
