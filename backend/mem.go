// Package backend provides a reference in-memory leg implementation
// for the mirror engine.
package backend

import (
	"sync"

	"github.com/blockmirror/mirrorset"
)

// ShardSize is the size of each memory shard (64KB). This gives good
// parallelism for 4K random I/O across legs while keeping lock overhead
// reasonable: a 256MB leg has 4096 shards.
const ShardSize = 64 * 1024

// Memory is a RAM-backed mirrorset.Backend. It uses sharded locking so
// concurrent writes to different legs, or concurrent reads against the
// same leg, don't serialize on a single mutex.
type Memory struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// NewMemory creates a new memory-backed leg of the specified size.
func NewMemory(size int64) *Memory {
	numShards := (size + ShardSize - 1) / ShardSize
	return &Memory{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

// shardRange returns the range of shards that cover [off, off+len)
func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// ReadAt implements mirrorset.Backend.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RLock()
	}

	n := copy(p, m.data[off:off+int64(len(p))])

	for i := startShard; i <= endShard; i++ {
		m.shards[i].RUnlock()
	}

	return n, nil
}

// WriteAt implements mirrorset.Backend.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, mirrorset.NewError("WRITE", mirrorset.ErrCodeInvalidArgument, "write beyond end of leg")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Lock()
	}

	n := copy(m.data[off:off+int64(len(p))], p)

	for i := startShard; i <= endShard; i++ {
		m.shards[i].Unlock()
	}

	return n, nil
}

// Size implements mirrorset.Backend.
func (m *Memory) Size() int64 {
	return m.size
}

// Close implements mirrorset.Backend.
func (m *Memory) Close() error {
	m.data = nil
	return nil
}

// Flush implements mirrorset.Backend. Memory has nothing to persist.
func (m *Memory) Flush() error {
	return nil
}

// Discard implements mirrorset.Discarder by zeroing the requested range.
func (m *Memory) Discard(offset, length int64) error {
	if offset >= m.size {
		return nil
	}

	end := offset + length
	if end > m.size {
		end = m.size
	}
	actualLen := end - offset

	startShard, endShard := m.shardRange(offset, actualLen)
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Lock()
	}

	for i := offset; i < end; i++ {
		m.data[i] = 0
	}

	for i := startShard; i <= endShard; i++ {
		m.shards[i].Unlock()
	}

	return nil
}

// Compile-time interface check
var _ mirrorset.Backend = (*Memory)(nil)
var _ mirrorset.Discarder = (*Memory)(nil)
