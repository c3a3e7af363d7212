package backend

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

// BenchmarkMemoryBackend measures the raw performance of a leg backend's
// read/write path in isolation from the mirror dispatcher.
func BenchmarkMemoryBackend(b *testing.B) {
	sizes := []int{
		4 * 1024,
		128 * 1024,
		1024 * 1024,
	}

	for _, size := range sizes {
		b.Run(formatSize(size), func(b *testing.B) {
			leg := NewMemory(64 << 20)
			data := make([]byte, size)
			rand.Read(data)

			b.Run("ReadAt", func(b *testing.B) {
				buf := make([]byte, size)
				b.SetBytes(int64(size))
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					offset := int64(rand.Intn(64<<20 - size))
					leg.ReadAt(buf, offset)
				}
			})

			b.Run("WriteAt", func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					offset := int64(rand.Intn(64<<20 - size))
					leg.WriteAt(data, offset)
				}
			})
		})
	}
}

// BenchmarkMemoryBackendConcurrent measures concurrent access performance,
// approximating the fan-out load a write dispatcher puts on a single leg.
func BenchmarkMemoryBackendConcurrent(b *testing.B) {
	leg := NewMemory(64 << 20)
	blockSize := 4096

	concurrencies := []int{1, 4, 8, 16, 32}

	for _, concurrency := range concurrencies {
		b.Run(fmt.Sprintf("Concurrency_%d", concurrency), func(b *testing.B) {
			b.SetBytes(int64(blockSize))

			b.RunParallel(func(pb *testing.PB) {
				buf := make([]byte, blockSize)
				data := make([]byte, blockSize)
				rand.Read(data)

				for pb.Next() {
					offset := int64(rand.Intn(64<<20 - blockSize))

					if rand.Float32() < 0.7 {
						leg.ReadAt(buf, offset)
					} else {
						leg.WriteAt(data, offset)
					}
				}
			})
		})
	}
}

// BenchmarkMemoryBackendLatency measures operation latency distribution.
func BenchmarkMemoryBackendLatency(b *testing.B) {
	leg := NewMemory(64 << 20)
	blockSize := 4096
	buf := make([]byte, blockSize)
	data := make([]byte, blockSize)
	rand.Read(data)

	b.Run("ReadLatency", func(b *testing.B) {
		latencies := make([]time.Duration, 0, b.N)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			offset := int64(rand.Intn(64<<20 - blockSize))

			start := time.Now()
			leg.ReadAt(buf, offset)
			latencies = append(latencies, time.Since(start))
		}

		b.StopTimer()
		reportLatencyPercentiles(b, latencies)
	})

	b.Run("WriteLatency", func(b *testing.B) {
		latencies := make([]time.Duration, 0, b.N)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			offset := int64(rand.Intn(64<<20 - blockSize))

			start := time.Now()
			leg.WriteAt(data, offset)
			latencies = append(latencies, time.Since(start))
		}

		b.StopTimer()
		reportLatencyPercentiles(b, latencies)
	})
}

func formatSize(bytes int) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%dMB", bytes/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%dKB", bytes/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

func reportLatencyPercentiles(b *testing.B, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}

	for i := 0; i < len(latencies); i++ {
		for j := i + 1; j < len(latencies); j++ {
			if latencies[i] > latencies[j] {
				latencies[i], latencies[j] = latencies[j], latencies[i]
			}
		}
	}

	p50 := latencies[len(latencies)*50/100]
	p90 := latencies[len(latencies)*90/100]
	p99 := latencies[len(latencies)*99/100]

	b.Logf("Latency percentiles: p50=%v, p90=%v, p99=%v", p50, p90, p99)
}
