// FILE: lixenwraith/mavlog/builder.go
package mavlog

// Builder provides a fluent API for building logger configurations.
// It wraps a Config instance and provides chainable methods for setting values.
type Builder struct {
	cfg *Config
	err error // Accumulate errors for deferred handling
}

// NewBuilder creates a new configuration builder with default values.
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultConfig(),
	}
}

// Config returns a validated copy of the built configuration.
func (b *Builder) Config() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return b.cfg.Clone(), nil
}

// Build creates a new Logger with the built configuration.
func (b *Builder) Build(opts ...Option) (*Logger, error) {
	cfg, err := b.Config()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Directory sets the log directory.
func (b *Builder) Directory(dir string) *Builder {
	b.cfg.Directory = dir
	return b
}

// Name sets the base file name.
func (b *Builder) Name(name string) *Builder {
	b.cfg.Name = name
	return b
}

// Extension sets the file extension, which also selects the tlog layout.
func (b *Builder) Extension(ext string) *Builder {
	b.cfg.Extension = ext
	return b
}

// TimestampNames embeds the session start time in file names.
func (b *Builder) TimestampNames(enable bool) *Builder {
	b.cfg.TimestampNames = enable
	return b
}

// MaxFileSize sets the rotation threshold in bytes.
func (b *Builder) MaxFileSize(size int64) *Builder {
	b.cfg.MaxFileSizeBytes = size
	return b
}

// MaxFileSizeString sets the rotation threshold from a size such as "16MiB".
func (b *Builder) MaxFileSizeString(size string) *Builder {
	if b.err != nil {
		return b
	}
	n, err := parseSize(size)
	if err != nil {
		b.err = configErrorf("max_file_size_bytes", "%v", err)
		return b
	}
	b.cfg.MaxFileSizeBytes = n
	return b
}

// MaxFileCount sets the number of files kept, the active one included.
func (b *Builder) MaxFileCount(count int64) *Builder {
	b.cfg.MaxFileCount = count
	return b
}

// MinDiskFreeKB sets the free space required before a file is created.
func (b *Builder) MinDiskFreeKB(kb int64) *Builder {
	b.cfg.MinDiskFreeKB = kb
	return b
}

// MavlinkOnly drops the type and size fields from entries.
func (b *Builder) MavlinkOnly(enable bool) *Builder {
	b.cfg.MavlinkOnly = enable
	return b
}

// NotTimestamped drops the timestamp field from entries.
func (b *Builder) NotTimestamped(enable bool) *Builder {
	b.cfg.NotTimestamped = enable
	return b
}

// ApplicationID sets the id written to every file header.
func (b *Builder) ApplicationID(id string) *Builder {
	b.cfg.SrcApplicationID = id
	return b
}

// Dialect sets the MAVLink version and dialect recorded in the definitions block.
func (b *Builder) Dialect(major, minor int64, dialect string) *Builder {
	b.cfg.MavVersionMajor = major
	b.cfg.MavVersionMinor = minor
	b.cfg.MavDialect = dialect
	return b
}

// DefinitionsPayload embeds message definitions of the given type ("urls" or "xml").
func (b *Builder) DefinitionsPayload(payloadType, payload string) *Builder {
	b.cfg.DefinitionsPayloadType = payloadType
	b.cfg.DefinitionsPayload = payload
	return b
}

// SyncOnWrite toggles the fsync after every entry.
func (b *Builder) SyncOnWrite(enable bool) *Builder {
	b.cfg.SyncOnWrite = enable
	return b
}

// CorruptionPolicy sets the default reader policy ("lenient" or "strict").
func (b *Builder) CorruptionPolicy(policy string) *Builder {
	b.cfg.CorruptionPolicy = policy
	return b
}

// Diagnostics sets the internal diagnostics level.
func (b *Builder) Diagnostics(level string) *Builder {
	b.cfg.Diagnostics = level
	return b
}

// Example usage:
// logger, err := mavlog.NewBuilder().
//
//	Directory("/var/log/vehicle").
//	MaxFileSizeString("16MiB").
//	MaxFileCount(10).
//	MavlinkOnly(true).
//	Build()
//
// if err == nil {
//
//	 defer logger.Close()
//	 logger.Log(msg, uint64(time.Now().UnixMicro()))
//
// }
