package mavlog

// File extensions
const (
	ExtMav  = "mav"
	ExtBin  = "bin"
	ExtTlog = "tlog"
)

// Corruption policy names
const (
	PolicyNameLenient = "lenient"
	PolicyNameStrict  = "strict"
)

// Storage
const (
	// Size multiplier for KB, MB
	sizeMultiplier = 1000
	// Upper bound for a definitions payload accepted by readers
	maxDefinitionsPayload = 64 * 1024 * 1024
	// Layout of the creation time embedded in session file names
	nameTimeLayout = "2006-01-02T15:04:05.000"
	// Default application id written to file headers
	defaultApplicationID = "mavlog"
)
