package mirrorset

import "github.com/blockmirror/mirrorset/internal/constants"

// Re-export tunable bounds for the public API
const (
	MinLegs                  = constants.MinLegs
	MaxLegs                  = constants.MaxLegs
	DMSMaxErrors             = constants.DMSMaxErrors
	MinQuantum               = constants.MinQuantum
	MaxQuantum               = constants.MaxQuantum
	MinChunkKiB              = constants.MinChunkKiB
	ChunkKiBAlignment        = constants.ChunkKiBAlignment
	DefaultChunkKiB          = constants.DefaultChunkKiB
	MinWeight                = constants.MinWeight
	MaxWeight                = constants.MaxWeight
	MaxSuppressedErrors      = constants.MaxSuppressedErrors
	DeviceNameSize           = constants.DeviceNameSize
	DefaultReconfigSlots     = constants.DefaultReconfigSlots
	SectorSize               = constants.SectorSize
	DefaultRoundRobinQuantum = constants.DefaultRoundRobinQuantum
)
