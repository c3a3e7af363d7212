package mirrorset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	require.Zero(t, snap.TotalOps)

	m.RecordRead(1024, 1000000, true)
	m.RecordWrite(2048, 2000000, true)
	m.RecordRead(512, 500000, false)

	snap = m.Snapshot()

	require.EqualValues(t, 2, snap.ReadOps)
	require.EqualValues(t, 1, snap.WriteOps)
	require.EqualValues(t, 1024, snap.ReadBytes)
	require.EqualValues(t, 2048, snap.WriteBytes)
	require.EqualValues(t, 1, snap.ReadErrors)
	require.Zero(t, snap.WriteErrors)

	expectedErrorRate := float64(1) / float64(3) * 100.0
	require.InDelta(t, expectedErrorRate, snap.ErrorRate, 0.1)
}

func TestMetricsRetriesAndLegFailures(t *testing.T) {
	m := NewMetrics()

	m.RecordRetry(true)
	m.RecordRetry(false)
	m.RecordLegFailure(1, ErrorWrite)
	m.RecordReconfig()

	snap := m.Snapshot()
	require.EqualValues(t, 2, snap.RetriesIssued)
	require.EqualValues(t, 1, snap.RetrySuccesses)
	require.EqualValues(t, 1, snap.RetryFailures)
	require.EqualValues(t, 1, snap.LegFailures)
	require.EqualValues(t, 1, snap.Reconfigs)
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordRead(1024, 1000000, true)
	m.RecordWrite(1024, 2000000, true)

	snap := m.Snapshot()

	require.EqualValues(t, 1500000, snap.AvgLatencyNs)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	require.GreaterOrEqual(t, snap.UptimeNs, uint64(10*1000000))

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	require.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+2*1000000)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordRead(1024, 1000000, true)
	m.RecordWrite(2048, 2000000, true)
	m.RecordLegFailure(0, ErrorWrite)

	snap := m.Snapshot()
	require.NotZero(t, snap.TotalOps)

	m.Reset()

	snap = m.Snapshot()
	require.Zero(t, snap.TotalOps)
	require.Zero(t, snap.TotalBytes)
	require.Zero(t, snap.LegFailures)
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveRead(1024, 1000000, true)
	observer.ObserveWrite(1024, 1000000, true)
	observer.ObserveFlush(1000000, true)
	observer.ObserveLegFailure(0, ErrorWrite)
	observer.ObserveRetry(true)
	observer.ObserveReconfig()

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveRead(1024, 1000000, true)
	metricsObserver.ObserveWrite(2048, 2000000, true)
	metricsObserver.ObserveLegFailure(1, ErrorRead)
	metricsObserver.ObserveRetry(false)

	snap := m.Snapshot()
	require.EqualValues(t, 1, snap.ReadOps)
	require.EqualValues(t, 1, snap.WriteOps)
	require.EqualValues(t, 1024, snap.ReadBytes)
	require.EqualValues(t, 2048, snap.WriteBytes)
	require.EqualValues(t, 1, snap.LegFailures)
	require.EqualValues(t, 1, snap.RetryFailures)
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordRead(1024, 1000000, true)
	m.RecordWrite(2048, 2000000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()

	require.InDelta(t, 1.0, snap.ReadIOPS, 0.1)
	require.InDelta(t, 1.0, snap.WriteIOPS, 0.1)
	require.InDelta(t, 1024, snap.ReadBandwidth, 50)
	require.InDelta(t, 2048, snap.WriteBandwidth, 100)
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordRead(1024, 500_000, true)
	}
	for i := 0; i < 49; i++ {
		m.RecordWrite(1024, 5_000_000, true)
	}
	m.RecordWrite(1024, 50_000_000, true)

	snap := m.Snapshot()

	require.EqualValues(t, 100, snap.TotalOps)
	require.GreaterOrEqual(t, snap.LatencyP50Ns, uint64(100_000))
	require.LessOrEqual(t, snap.LatencyP50Ns, uint64(1_000_000))
	require.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))
	require.LessOrEqual(t, snap.LatencyP99Ns, uint64(100_000_000))

	var totalInBuckets uint64
	for _, v := range snap.LatencyHistogram {
		totalInBuckets += v
	}
	require.NotZero(t, totalInBuckets)
}
