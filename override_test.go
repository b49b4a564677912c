// FILE: lixenwraith/mavlog/override_test.go
package mavlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverride(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyOverride(
		"directory=/var/log/vehicle",
		"name = flight",
		"extension=bin",
		"timestamp_names=true",
		"max_file_size_bytes=16MiB",
		"max_file_count=8",
		"min_disk_free_kb=2048",
		"mavlink_only=true",
		"not_timestamped=1",
		"src_application_id=ground-station",
		"mav_version_major=1",
		"mav_version_minor=0",
		"mav_dialect=ardupilotmega",
		"definitions_payload_type=urls",
		"definitions_payload=https://example.com/a.xml,https://example.com/b.xml",
		"sync_on_write=false",
		"corruption_policy=strict",
		"diagnostics=warn",
	)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/vehicle", cfg.Directory)
	assert.Equal(t, "flight", cfg.Name)
	assert.Equal(t, ExtBin, cfg.Extension)
	assert.True(t, cfg.TimestampNames)
	assert.Equal(t, int64(16<<20), cfg.MaxFileSizeBytes)
	assert.Equal(t, int64(8), cfg.MaxFileCount)
	assert.Equal(t, int64(2048), cfg.MinDiskFreeKB)
	assert.True(t, cfg.MavlinkOnly)
	assert.True(t, cfg.NotTimestamped)
	assert.Equal(t, "ground-station", cfg.SrcApplicationID)
	assert.Equal(t, int64(1), cfg.MavVersionMajor)
	assert.Equal(t, "ardupilotmega", cfg.MavDialect)
	assert.Equal(t, "https://example.com/a.xml,https://example.com/b.xml", cfg.DefinitionsPayload)
	assert.False(t, cfg.SyncOnWrite)
	assert.Equal(t, PolicyStrict, cfg.Policy())
	assert.Equal(t, "warn", cfg.Diagnostics)
}

func TestApplyOverrideErrors(t *testing.T) {
	tests := []struct {
		name      string
		overrides []string
		wantError string
	}{
		{"missing equals", []string{"mavlink_only"}, "expected key=value"},
		{"empty key", []string{"=true"}, "key cannot be empty"},
		{"unknown key", []string{"level=debug"}, "unknown configuration key"},
		{"bad bool", []string{"sync_on_write=maybe"}, "invalid boolean value"},
		{"bad integer", []string{"max_file_count=many"}, "invalid integer value"},
		{"bad size", []string{"max_file_size_bytes=huge"}, "invalid size"},
		{"fails validation", []string{"max_file_count=0"}, "at least 1"},
		{
			"multiple errors",
			[]string{"level=debug", "sync_on_write=maybe"},
			"multiple configuration errors:\n  1. invalid configuration level: unknown configuration key\n  2.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			before := *cfg

			err := cfg.ApplyOverride(tt.overrides...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)

			// A failed override leaves the config untouched
			assert.Equal(t, before, *cfg)
		})
	}
}

func TestApplyOverrideAtomic(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyOverride("name=flight", "extension=tlog", "mavlink_only=true")

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "extension", ce.Key)
	assert.Equal(t, "log", cfg.Name)
	assert.Equal(t, ExtMav, cfg.Extension)
}
