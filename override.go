// FILE: lixenwraith/mavlog/override.go
package mavlog

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyOverride applies string key-value overrides to the configuration in
// place. Each override should be in the format "key=value". The result is
// validated once all overrides are applied.
//
// Example:
//
//	cfg := mavlog.DefaultConfig()
//	err := cfg.ApplyOverride(
//	    "directory=/var/log/vehicle",
//	    "max_file_size_bytes=16MiB",
//	    "mavlink_only=true",
//	)
func (c *Config) ApplyOverride(overrides ...string) error {
	next := c.Clone()

	var errors []error

	for _, override := range overrides {
		key, value, err := parseKeyValue(override)
		if err != nil {
			errors = append(errors, err)
			continue
		}

		if err := applyConfigField(next, key, value); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return combineConfigErrors(errors)
	}

	if err := next.Validate(); err != nil {
		return err
	}

	*c = *next
	return nil
}

// combineConfigErrors combines multiple configuration errors into a single error.
func combineConfigErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	var sb strings.Builder
	sb.WriteString("multiple configuration errors:")
	for i, err := range errors {
		errMsg := strings.TrimPrefix(err.Error(), "mavlog: ")
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, errMsg))
	}
	return &ConfigError{Msg: sb.String()}
}

// applyConfigField applies a single key-value override to a Config.
func applyConfigField(cfg *Config, key, value string) error {
	switch key {
	// File set
	case "directory":
		cfg.Directory = value
	case "name":
		cfg.Name = value
	case "extension":
		cfg.Extension = value
	case "timestamp_names":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return configErrorf(key, "invalid boolean value '%s': %v", value, err)
		}
		cfg.TimestampNames = boolVal

	// Rotation and disk limits
	case "max_file_size_bytes":
		size, err := parseSize(value)
		if err != nil {
			return configErrorf(key, "%v", err)
		}
		cfg.MaxFileSizeBytes = size
	case "max_file_count":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf(key, "invalid integer value '%s': %v", value, err)
		}
		cfg.MaxFileCount = intVal
	case "min_disk_free_kb":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf(key, "invalid integer value '%s': %v", value, err)
		}
		cfg.MinDiskFreeKB = intVal

	// Entry shape
	case "mavlink_only":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return configErrorf(key, "invalid boolean value '%s': %v", value, err)
		}
		cfg.MavlinkOnly = boolVal
	case "not_timestamped":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return configErrorf(key, "invalid boolean value '%s': %v", value, err)
		}
		cfg.NotTimestamped = boolVal
	case "src_application_id":
		cfg.SrcApplicationID = value

	// Message definitions
	case "mav_version_major":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf(key, "invalid integer value '%s': %v", value, err)
		}
		cfg.MavVersionMajor = intVal
	case "mav_version_minor":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf(key, "invalid integer value '%s': %v", value, err)
		}
		cfg.MavVersionMinor = intVal
	case "mav_dialect":
		cfg.MavDialect = value
	case "definitions_payload_type":
		cfg.DefinitionsPayloadType = value
	case "definitions_payload":
		cfg.DefinitionsPayload = value

	// Durability and reading
	case "sync_on_write":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return configErrorf(key, "invalid boolean value '%s': %v", value, err)
		}
		cfg.SyncOnWrite = boolVal
	case "corruption_policy":
		cfg.CorruptionPolicy = value

	// Internal diagnostics
	case "diagnostics":
		cfg.Diagnostics = value

	default:
		return configErrorf(key, "unknown configuration key")
	}

	return nil
}
