package mirrorset

import (
	"fmt"
	"strconv"

	"github.com/blockmirror/mirrorset/internal/bufpool"
)

// HandleIOBalance implements the `io_balance <policy-name> <param-name>
// <value>` control message. Switching policies is immediate and
// affects only subsequent selections — it never blocks in-flight I/O.
func (ms *MirrorSet) HandleIOBalance(policyName, paramName, value string) error {
	switch policyName {
	case "round_robin":
		if paramName != "ios" {
			return NewError("IO_BALANCE", ErrCodeInvalidArgument, "round_robin expects param ios")
		}
		q, err := strconv.ParseInt(value, 10, 64)
		if err != nil || q < MinQuantum || q > MaxQuantum {
			return NewError("IO_BALANCE", ErrCodeQuantumRange, "quantum out of range")
		}
		p := newRoundRobinPolicy(q, len(ms.legs))
		ms.policy.Store(readPolicy(p))
		return nil

	case "logical_part":
		if paramName != "io_chunk" {
			return NewError("IO_BALANCE", ErrCodeInvalidArgument, "logical_part expects param io_chunk")
		}
		c, err := strconv.ParseInt(value, 10, 64)
		if err != nil || c < MinChunkKiB || c%ChunkKiBAlignment != 0 {
			return NewError("IO_BALANCE", ErrCodeChunkRange, "chunk out of range or misaligned")
		}
		p := newLogicalPartitionPolicy(c)
		ms.policy.Store(readPolicy(p))
		return nil

	case "weighted":
		if paramName != "dev_weight" {
			return NewError("IO_BALANCE", ErrCodeInvalidArgument, "weighted expects param dev_weight")
		}
		w, err := strconv.ParseInt(value, 10, 32)
		if err != nil || w < MinWeight || w > MaxWeight {
			return NewError("IO_BALANCE", ErrCodeWeightRange, "default weight out of range")
		}
		p := newWeightedPolicy(len(ms.legs), int32(w))
		p.recomputeMax(ms)
		ms.policy.Store(readPolicy(p))
		return nil

	default:
		return NewError("IO_BALANCE", ErrCodeUnknownPolicy, "unknown policy: "+policyName)
	}
}

// HandleIOCmd implements the `io_cmd <command> <arg1> <arg2>` control
// message family.
func (ms *MirrorSet) HandleIOCmd(command, arg1, arg2 string) (string, error) {
	switch command {
	case "set_weight":
		return "", ms.setWeight(arg1, arg2)
	case "check_data_mirror_all":
		return "", ms.checkDataMirrorAll(arg2)
	case "check_data_mirror_block":
		return "", ms.checkDataMirrorBlock(arg1, arg2)
	default:
		return "", NewError("IO_CMD", ErrCodeUnknownCommand, "unknown command: "+command)
	}
}

func (ms *MirrorSet) setWeight(legIndexStr, weightStr string) error {
	p, ok := ms.policy.Load().(readPolicy).(*weightedPolicy)
	if !ok {
		return NewError("SET_WEIGHT", ErrCodeInvalidArgument, "weighted policy is not active")
	}

	idx, err := strconv.Atoi(legIndexStr)
	if err != nil || idx < 0 || idx >= len(ms.legs) {
		return NewError("SET_WEIGHT", ErrCodeLegIndexRange, "leg index out of range")
	}
	w, err := strconv.ParseInt(weightStr, 10, 32)
	if err != nil || w < MinWeight || w > MaxWeight {
		return NewError("SET_WEIGHT", ErrCodeWeightRange, "weight out of range")
	}

	p.setWeight(ms, idx, int32(w))
	return nil
}

// MismatchReport describes the first byte-level divergence found by a
// mirror-comparison command.
type MismatchReport struct {
	Sector     int64
	LegA, LegB int
	ByteOffset int64
}

func (r *MismatchReport) Error() string {
	return fmt.Sprintf("mirror data mismatch at sector %d: leg %d and leg %d differ at byte offset %d",
		r.Sector, r.LegA, r.LegB, r.ByteOffset)
}

// checkDataMirrorBlock parses the io_cmd string arguments and delegates
// to CheckBlock.
func (ms *MirrorSet) checkDataMirrorBlock(sectorStr, blockSizeStr string) error {
	sector, err := strconv.ParseInt(sectorStr, 10, 64)
	if err != nil {
		return NewError("CHECK_DATA_MIRROR_BLOCK", ErrCodeInvalidArgument, "sector not an integer")
	}
	blockSize, err := strconv.Atoi(blockSizeStr)
	if err != nil || blockSize <= 0 {
		return NewError("CHECK_DATA_MIRROR_BLOCK", ErrCodeInvalidArgument, "block size not a positive integer")
	}
	_, err = ms.CheckBlock(sector, blockSize)
	return err
}

// checkDataMirrorAll parses the io_cmd string argument and delegates
// to CheckAll.
func (ms *MirrorSet) checkDataMirrorAll(blockSizeStr string) error {
	blockSize, err := strconv.Atoi(blockSizeStr)
	if err != nil || blockSize <= 0 {
		return NewError("CHECK_DATA_MIRROR_ALL", ErrCodeInvalidArgument, "block size not a positive integer")
	}
	_, err = ms.CheckAll(blockSize)
	return err
}

// CheckBlock reads one block from every alive leg at sector and
// compares pairwise, reporting the first byte-level difference. It is
// the Go-native entry point behind the `check_data_mirror_block`
// control message. The returned error is a *Error coded
// ErrCodeMismatch (IsCode(err, ErrCodeMismatch)) wrapping the
// MismatchReport, so callers that only care about the error category
// don't need to type-assert the report themselves.
func (ms *MirrorSet) CheckBlock(sector int64, blockSize int) (*MismatchReport, error) {
	err := ms.compareBlock(sector, blockSize)
	if err == nil {
		return nil, nil
	}
	report, ok := err.(*MismatchReport)
	if !ok {
		return nil, err
	}
	return report, &Error{Op: "CHECK_DATA_MIRROR", Leg: -1, Code: ErrCodeMismatch, Msg: report.Error(), Inner: report}
}

// CheckAll walks the whole mirrored range block-by-block comparing
// every alive leg, stopping at the first mismatch found. It is the
// Go-native entry point behind the `check_data_mirror_all` control
// message.
func (ms *MirrorSet) CheckAll(blockSize int) ([]*MismatchReport, error) {
	size := ms.Size()
	for off := int64(0); off < size; off += int64(blockSize) {
		sector := off / SectorSize
		report, err := ms.CheckBlock(sector, blockSize)
		if report != nil {
			return []*MismatchReport{report}, err
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// compareBlock reads sector..sector+blockSize from every alive leg
// using pooled scratch buffers and compares them pairwise against the
// first alive leg's data.
func (ms *MirrorSet) compareBlock(sector int64, blockSize int) error {
	type read struct {
		legIndex int
		buf      []byte
	}

	var reads []read
	for _, leg := range ms.legs {
		if !leg.Alive() {
			continue
		}
		buf := bufpool.Get(blockSize)
		off := leg.mappedSector(sector) * SectorSize
		if _, err := leg.Backend.ReadAt(buf, off); err != nil {
			bufpool.Put(buf)
			return WrapError("CHECK_DATA_MIRROR", err)
		}
		reads = append(reads, read{legIndex: leg.Index, buf: buf})
	}
	defer func() {
		for _, r := range reads {
			bufpool.Put(r.buf)
		}
	}()

	if len(reads) < 2 {
		return nil
	}

	base := reads[0]
	for _, r := range reads[1:] {
		for i := range base.buf {
			if base.buf[i] != r.buf[i] {
				return &MismatchReport{Sector: sector, LegA: base.legIndex, LegB: r.legIndex, ByteOffset: int64(i)}
			}
		}
	}
	return nil
}
