package mirrorset

import (
	"fmt"
	"strconv"
	"strings"
)

// LegSpec is one `(device offset)` pair from a construction string or
// TABLE status line.
type LegSpec struct {
	Device string
	Offset int64
}

// Config is the front door for constructing a MirrorSet: either build
// one from Go values directly, or call ParseConstructionString to
// derive one from the upper layer's table-line text.
type Config struct {
	Name     string
	Policy   PolicyKind
	Quantum  int64 // round_robin
	ChunkKiB int64 // logical_part
	Weight   int32 // weighted, default weight
	Legs     []LegSpec
	Backends []Backend // same length/order as Legs

	// WeightOverrideSet/WeightOverrideLeg/WeightOverrideValue set one
	// leg's weight away from the default at construction time, per the
	// weighted construction string's "leg index, that leg's weight"
	// params. WeightOverrideSet is false by default (Config's zero
	// value), so a Config built directly rather than through
	// ParseConstructionString never applies a spurious override.
	WeightOverrideSet   bool
	WeightOverrideLeg   int
	WeightOverrideValue int32

	Registry *Registry
	Observer Observer
	OnEvent  EventTrigger
}

// ParseConstructionString parses the upper-layer table line:
//
//	<policy> <nparams> <params...> <nlegs> (<device> <offset>){nlegs}
//
// policy is one of core (legacy alias for round_robin with the default
// quantum), round_robin, logical_part, weighted.
func ParseConstructionString(name, line string) (*Config, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "construction string too short")
	}

	cfg := &Config{Name: name}
	pos := 0
	policyName := fields[pos]
	pos++

	nparams, err := strconv.Atoi(fields[pos])
	if err != nil || nparams < 0 {
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "nparams not a non-negative integer")
	}
	pos++

	if nparams > len(fields)-pos {
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "nparams exceeds remaining fields")
	}
	params := fields[pos : pos+nparams]
	pos += nparams

	switch policyName {
	case "core":
		cfg.Policy = PolicyRoundRobin
		cfg.Quantum = DefaultRoundRobinQuantum
	case "round_robin":
		cfg.Policy = PolicyRoundRobin
		if len(params) != 1 {
			return nil, NewError("PARSE", ErrCodeInvalidArgument, "round_robin takes 1 param")
		}
		q, err := strconv.ParseInt(params[0], 10, 64)
		if err != nil || q < MinQuantum || q > MaxQuantum {
			return nil, NewError("PARSE", ErrCodeQuantumRange, "quantum out of range")
		}
		cfg.Quantum = q
	case "logical_part":
		cfg.Policy = PolicyLogicalPartition
		if len(params) != 1 {
			return nil, NewError("PARSE", ErrCodeInvalidArgument, "logical_part takes 1 param")
		}
		c, err := strconv.ParseInt(params[0], 10, 64)
		if err != nil || c < MinChunkKiB || c%ChunkKiBAlignment != 0 {
			return nil, NewError("PARSE", ErrCodeChunkRange, "chunk out of range or misaligned")
		}
		cfg.ChunkKiB = c
	case "weighted":
		cfg.Policy = PolicyWeighted
		if len(params) != 3 {
			return nil, NewError("PARSE", ErrCodeInvalidArgument, "weighted takes 3 params: default weight, leg index, leg weight")
		}
		w, err := strconv.ParseInt(params[0], 10, 32)
		if err != nil || w < MinWeight || w > MaxWeight {
			return nil, NewError("PARSE", ErrCodeWeightRange, "default weight out of range")
		}
		cfg.Weight = int32(w)

		legIdx, err := strconv.Atoi(params[1])
		if err != nil || legIdx < 0 {
			return nil, NewError("PARSE", ErrCodeLegIndexRange, "weighted leg index not a non-negative integer")
		}
		legW, err := strconv.ParseInt(params[2], 10, 32)
		if err != nil || legW < MinWeight || legW > MaxWeight {
			return nil, NewError("PARSE", ErrCodeWeightRange, "weighted leg weight out of range")
		}
		cfg.WeightOverrideSet = true
		cfg.WeightOverrideLeg = legIdx
		cfg.WeightOverrideValue = int32(legW)
	default:
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "unknown policy name: "+policyName)
	}

	if pos >= len(fields) {
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "missing nlegs")
	}
	nlegs, err := strconv.Atoi(fields[pos])
	if err != nil || nlegs < MinLegs || nlegs > MaxLegs {
		return nil, NewError("PARSE", ErrCodeLegCountRange, "nlegs out of range")
	}
	pos++

	if len(fields)-pos != nlegs*2 {
		return nil, NewError("PARSE", ErrCodeInvalidArgument, "leg device/offset count mismatch")
	}
	if cfg.WeightOverrideSet && cfg.WeightOverrideLeg >= nlegs {
		return nil, NewError("PARSE", ErrCodeLegIndexRange, "weighted leg index out of range")
	}

	legs := make([]LegSpec, 0, nlegs)
	for i := 0; i < nlegs; i++ {
		dev := fields[pos]
		pos++
		off, err := strconv.ParseInt(fields[pos], 10, 64)
		if err != nil {
			return nil, NewError("PARSE", ErrCodeInvalidArgument, "leg offset not an integer")
		}
		pos++
		if len(dev) > DeviceNameSize {
			return nil, NewDeviceError("PARSE", dev, ErrCodeDeviceNameLength, "device name exceeds 16 bytes")
		}
		legs = append(legs, LegSpec{Device: dev, Offset: off})
	}
	cfg.Legs = legs

	return cfg, nil
}

// policySummary renders the INFO status policy-summary field.
func (ms *MirrorSet) policySummary() string {
	switch p := ms.policy.Load().(type) {
	case *roundRobinPolicy:
		return fmt.Sprintf("RR,ios=%d", p.quantum.Load())
	case *logicalPartitionPolicy:
		return fmt.Sprintf("LP,c=%dkB", p.chunkKiB.Load())
	case *weightedPolicy:
		var b strings.Builder
		fmt.Fprintf(&b, "CW,wml=%d", p.maxLiveIdx.Load())
		for i := 0; i < len(ms.legs); i++ {
			fmt.Fprintf(&b, ",w[%d]=%d", i, p.weights[i].Load())
		}
		return b.String()
	default:
		return "unknown"
	}
}

// Info renders the INFO status string.
func (ms *MirrorSet) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mirrorset-1 %d %s", len(ms.legs), ms.policySummary())

	live := 0
	for _, leg := range ms.legs {
		fmt.Fprintf(&b, " %d,%s,%c", leg.Index, leg.Name, leg.StatusChar())
		if leg.Alive() {
			live++
		}
	}

	fmt.Fprintf(&b, "\n==> Live_Devs: %d, IO_Count: TRD: %d ORD: %d TWR: %d OWR: %d",
		live, ms.totalReads.Load(), ms.pendingReads.Load(), ms.totalWrites.Load(), ms.pendingWrites.Load())

	return b.String()
}

// Table renders the TABLE status string — round-trip identical to the
// device portion of a construction string.
func (ms *MirrorSet) Table() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", len(ms.legs))
	for _, leg := range ms.legs {
		fmt.Fprintf(&b, " %s %d", leg.Name, leg.Offset)
	}
	return b.String()
}
