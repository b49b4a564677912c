// FILE: lixenwraith/mavlog/config.go
package mavlog

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lixenwraith/config"
	"go.uber.org/zap/zapcore"

	"github.com/lixenwraith/mavlog/format"
)

// Config holds all logger configuration values
type Config struct {
	// File set
	Directory      string `toml:"directory"`
	Name           string `toml:"name"`            // Base name for log files
	Extension      string `toml:"extension"`       // "mav", "bin" or "tlog"
	TimestampNames bool   `toml:"timestamp_names"` // Embed session start time in file names

	// Rotation and disk limits
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"` // Rotation threshold per file
	MaxFileCount     int64 `toml:"max_file_count"`      // Files kept including the active one
	MinDiskFreeKB    int64 `toml:"min_disk_free_kb"`    // Checked before creating a file, 0 disables

	// Entry shape
	MavlinkOnly      bool   `toml:"mavlink_only"`
	NotTimestamped   bool   `toml:"not_timestamped"`
	SrcApplicationID string `toml:"src_application_id"` // Truncated to 32 bytes

	// Message definitions
	MavVersionMajor        int64  `toml:"mav_version_major"`
	MavVersionMinor        int64  `toml:"mav_version_minor"`
	MavDialect             string `toml:"mav_dialect"`
	DefinitionsPayloadType string `toml:"definitions_payload_type"` // "none", "urls" or "xml"
	DefinitionsPayload     string `toml:"definitions_payload"`

	// Durability and reading
	SyncOnWrite      bool   `toml:"sync_on_write"`     // fsync after every entry
	CorruptionPolicy string `toml:"corruption_policy"` // "lenient" or "strict"

	// Internal diagnostics
	Diagnostics string `toml:"diagnostics"` // "off", "debug", "info", "warn" or "error"
}

// defaultConfig is the single source for all configurable default values
var defaultConfig = Config{
	// File set
	Directory:      "./mavlogs",
	Name:           "log",
	Extension:      ExtMav,
	TimestampNames: false,

	// Rotation and disk limits
	MaxFileSizeBytes: 10 * sizeMultiplier * sizeMultiplier,
	MaxFileCount:     5,
	MinDiskFreeKB:    0,

	// Entry shape
	MavlinkOnly:      false,
	NotTimestamped:   false,
	SrcApplicationID: defaultApplicationID,

	// Message definitions
	MavVersionMajor:        format.DefaultVersionMajor,
	MavVersionMinor:        format.DefaultVersionMinor,
	MavDialect:             format.DefaultDialect,
	DefinitionsPayloadType: "none",
	DefinitionsPayload:     "",

	// Durability and reading
	SyncOnWrite:      true,
	CorruptionPolicy: PolicyNameLenient,

	// Internal diagnostics
	Diagnostics: "off",
}

// DefaultConfig returns a copy of the default configuration
func DefaultConfig() *Config {
	copiedConfig := defaultConfig
	return &copiedConfig
}

// NewConfigFromFile loads configuration from a TOML file and returns a validated Config.
// Keys live under the "mavlog." table.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := config.New()

	// Register the struct to enable proper unmarshaling
	if err := loader.RegisterStruct("mavlog.", *cfg); err != nil {
		return nil, fmt.Errorf("failed to register config struct: %w", err)
	}

	// Missing file means defaults
	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := extractConfig(loader, "mavlog.", cfg); err != nil {
		return nil, fmt.Errorf("failed to extract config values: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewConfigFromDefaults creates a Config with default values and applies overrides
func NewConfigFromDefaults(overrides map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, fmt.Errorf("failed to apply overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// extractConfig extracts values from lixenwraith/config into our Config struct
func extractConfig(loader *config.Config, prefix string, cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" {
			continue
		}

		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue
		}

		if err := setFieldValue(v.Field(i), val); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}

	return nil
}

// applyOverrides applies a map of overrides to the Config struct
func applyOverrides(cfg *Config, overrides map[string]any) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	fieldMap := make(map[string]reflect.Value)
	for i := 0; i < t.NumField(); i++ {
		if tomlTag := t.Field(i).Tag.Get("toml"); tomlTag != "" {
			fieldMap[tomlTag] = v.Field(i)
		}
	}

	for key, value := range overrides {
		fieldValue, exists := fieldMap[key]
		if !exists {
			return &ConfigError{Key: key, Msg: "unknown config key"}
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value with proper type conversion.
// Integer fields also accept human readable sizes such as "10MB".
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		strVal, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(strVal)

	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		case string:
			n, err := parseSize(v)
			if err != nil {
				return err
			}
			field.SetInt(n)
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}

	case reflect.Bool:
		boolVal, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// parseSize accepts plain integers and humanized sizes ("128", "64KiB", "10MB")
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size '%s': %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size '%s' out of range", s)
	}
	return int64(n), nil
}

// Validate checks every field and the cross-field constraints. All failures
// are *ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return configErrorf("name", "log name cannot be empty")
	}
	if strings.ContainsAny(c.Name, `/\`) || c.Name != filepath.Base(c.Name) {
		return configErrorf("name", "must not contain path separators: %s", c.Name)
	}
	if strings.TrimSpace(c.Directory) == "" {
		return configErrorf("directory", "cannot be empty")
	}

	if strings.HasPrefix(c.Extension, ".") {
		return configErrorf("extension", "should not start with dot: %s", c.Extension)
	}
	switch c.Extension {
	case ExtMav, ExtBin, ExtTlog:
	default:
		return configErrorf("extension", "invalid extension '%s' (use mav, bin or tlog)", c.Extension)
	}

	if c.MaxFileCount < 1 {
		return configErrorf("max_file_count", "must be at least 1: %d", c.MaxFileCount)
	}
	if c.MinDiskFreeKB < 0 {
		return configErrorf("min_disk_free_kb", "cannot be negative: %d", c.MinDiskFreeKB)
	}

	if c.MavVersionMajor < 0 || c.MavVersionMajor > math.MaxUint32 {
		return configErrorf("mav_version_major", "out of range: %d", c.MavVersionMajor)
	}
	if c.MavVersionMinor < 0 || c.MavVersionMinor > math.MaxUint32 {
		return configErrorf("mav_version_minor", "out of range: %d", c.MavVersionMinor)
	}

	defs, err := c.definitions()
	if err != nil {
		return err
	}

	if _, err := ParsePolicy(c.CorruptionPolicy); err != nil {
		return configErrorf("corruption_policy", "%v", err)
	}
	if _, err := parseDiagnosticsLevel(c.Diagnostics); err != nil {
		return configErrorf("diagnostics", "%v", err)
	}

	// Cross-field validations
	if c.isTlog() {
		if c.MavlinkOnly || c.NotTimestamped {
			return configErrorf("extension", "tlog files carry no format flags")
		}
		if c.MaxFileSizeBytes <= 0 {
			return configErrorf("max_file_size_bytes", "must be positive: %d", c.MaxFileSizeBytes)
		}
		return nil
	}

	preamble := int64(format.HeaderSize + defs.EncodedSize())
	if c.MaxFileSizeBytes < preamble {
		return configErrorf("max_file_size_bytes",
			"%d cannot hold the %d byte file header and definitions block", c.MaxFileSizeBytes, preamble)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	copiedConfig := *c
	return &copiedConfig
}

// Flags returns the header flags selected by the configuration
func (c *Config) Flags() format.Flags {
	var f format.Flags
	if c.MavlinkOnly {
		f |= format.FlagMavlinkOnly
	}
	if c.NotTimestamped {
		f |= format.FlagNotTimestamped
	}
	return f
}

// Definitions returns the message definitions block written after every file header
func (c *Config) Definitions() (format.Definitions, error) {
	return c.definitions()
}

func (c *Config) definitions() (format.Definitions, error) {
	pt, err := format.ParsePayloadType(c.DefinitionsPayloadType)
	if err != nil {
		return format.Definitions{}, configErrorf("definitions_payload_type", "%v", err)
	}
	d := format.Definitions{
		VersionMajor: uint32(c.MavVersionMajor),
		VersionMinor: uint32(c.MavVersionMinor),
		Dialect:      c.MavDialect,
		PayloadType:  pt,
	}
	if c.DefinitionsPayload != "" {
		d.Payload = []byte(c.DefinitionsPayload)
	}
	if err := d.Validate(); err != nil {
		return format.Definitions{}, configErrorf("definitions_payload", "%v", err)
	}
	return d, nil
}

func (c *Config) isTlog() bool {
	return c.Extension == ExtTlog
}

// Policy returns the parsed corruption policy. It is only meaningful on a
// validated Config.
func (c *Config) Policy() Policy {
	p, _ := ParsePolicy(c.CorruptionPolicy)
	return p
}

// parseDiagnosticsLevel maps the diagnostics setting to a zap level. "off"
// maps to zapcore.InvalidLevel.
func parseDiagnosticsLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return zapcore.InvalidLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("invalid level '%s' (use off, debug, info, warn or error)", s)
	}
}
