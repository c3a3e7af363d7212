package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	size := int64(1024)
	mem := NewMemory(size)

	require.Equal(t, size, mem.Size())
	require.Len(t, mem.data, int(size))
}

func TestMemoryReadWrite(t *testing.T) {
	mem := NewMemory(1024)
	defer mem.Close()

	testData := []byte("Hello, mirror!")
	n, err := mem.WriteAt(testData, 0)
	require.NoError(t, err)
	require.Equal(t, len(testData), n)

	readBuf := make([]byte, len(testData))
	n, err = mem.ReadAt(readBuf, 0)
	require.NoError(t, err)
	require.Equal(t, len(testData), n)
	require.Equal(t, testData, readBuf)
}

func TestMemoryBoundaryConditions(t *testing.T) {
	mem := NewMemory(100)
	defer mem.Close()

	buf := make([]byte, 50)
	n, err := mem.ReadAt(buf, 80)
	require.NoError(t, err)
	require.Equal(t, 20, n)

	_, err = mem.WriteAt([]byte("test"), 98)
	require.NoError(t, err)

	_, err = mem.WriteAt([]byte("test"), 101)
	require.Error(t, err)
}

func BenchmarkMemoryRead(b *testing.B) {
	mem := NewMemory(1024 * 1024)
	defer mem.Close()

	buf := make([]byte, 4096)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(i*4096) % (1024*1024 - 4096)
		mem.ReadAt(buf, offset)
	}
}

func BenchmarkMemoryWrite(b *testing.B) {
	mem := NewMemory(1024 * 1024)
	defer mem.Close()

	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(i*4096) % (1024*1024 - 4096)
		mem.WriteAt(buf, offset)
	}
}
