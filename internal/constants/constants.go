// Package constants holds the tunable bounds and defaults for the mirror
// engine: leg counts, policy parameter ranges, and error-accounting caps.
package constants

// Leg count bounds. A MirrorSet always has at least two legs (otherwise
// there is nothing to mirror) and at most eight (the fixed width of the
// weighted policy's weight table).
const (
	MinLegs = 2
	MaxLegs = 8
)

// DMSMaxErrors caps how many times error_count is bumped for a leg; past
// this the leg is already dead (all three error bits are set on the very
// first fault) so the cap only bounds the counter, not liveness.
const DMSMaxErrors = 2

// Round-robin quantum bounds (inclusive). The lower bound keeps a single
// failing read from flapping the cursor every call; the upper bound is a
// sanity ceiling on the construction-string argument.
const (
	MinQuantum = 2
	MaxQuantum = 1 << 30
)

// Logical-partition chunk bounds, in KiB. Chunks must be at least 128KiB
// and a multiple of 8KiB so the sector-granularity math never truncates.
const (
	MinChunkKiB       = 128
	ChunkKiBAlignment = 8
	DefaultChunkKiB   = 1024
	sectorsPerKiB     = 2 // 512-byte sectors per KiB
)

// ChunkSectors converts a chunk size in KiB to sectors.
func ChunkSectors(chunkKiB int) int64 {
	return int64(chunkKiB) * sectorsPerKiB
}

// Leg weight bounds (inclusive), used by the weighted read policy.
const (
	MinWeight = 1
	MaxWeight = 100
)

// MaxSuppressedErrors caps how many terminal-failure log lines a
// MirrorSet will emit over its lifetime before going silent, to avoid
// flooding the operator log during a sustained outage.
const MaxSuppressedErrors = 20

// DeviceNameSize is the maximum length in bytes of a MirrorSet's device
// name, matching the original driver's `char name[16]`. Longer names are
// rejected, not truncated.
const DeviceNameSize = 16

// DefaultReconfigSlots sizes the process-wide reconfiguration registry.
const DefaultReconfigSlots = 64

// SectorSize is the fixed logical sector size backing all sector-address
// arithmetic in the mirror engine.
const SectorSize = 512

// DefaultRoundRobinQuantum is the quantum used when a Config selects
// round-robin with Quantum left at zero, or the legacy "core" policy
// name is used.
const DefaultRoundRobinQuantum = 8
