package mirrorset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConfig(name string, nlegs int) (Config, []*FaultyBackend) {
	backends := make([]*FaultyBackend, nlegs)
	legs := make([]LegSpec, nlegs)
	ifaces := make([]Backend, nlegs)
	for i := 0; i < nlegs; i++ {
		backends[i] = NewFaultyBackend(4096)
		legs[i] = LegSpec{Device: "leg", Offset: 0}
		ifaces[i] = backends[i]
	}
	return Config{
		Name:     name,
		Policy:   PolicyRoundRobin,
		Quantum:  8,
		Legs:     legs,
		Backends: ifaces,
	}, backends
}

func TestCleanWriteFanOut(t *testing.T) {
	cfg, _ := newTestConfig("dev0", 3)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	n, err := ms.WriteAt(make([]byte, 4096), 100*SectorSize)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.EqualValues(t, 1, ms.totalWrites.Load())
	require.EqualValues(t, 0, ms.pendingWrites.Load())
}

func TestPartialWriteFailure(t *testing.T) {
	cfg, backends := newTestConfig("dev1", 3)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	backends[1].FailNextWrites(1)

	n, err := ms.WriteAt(make([]byte, 512), 0)
	require.NoError(t, err)
	require.Equal(t, 512, n)

	require.False(t, ms.legs[1].Alive())
	require.Equal(t, allErrorBits, ms.legs[1].ErrorType())
	require.True(t, ms.legs[0].Alive())
	require.Equal(t, ms.legs[0], ms.DefaultLeg())
}

func TestReadRetryThroughSurvivingLeg(t *testing.T) {
	cfg, backends := newTestConfig("dev2", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	// The round-robin cursor starts at the last leg, so the first read
	// is routed to L1. Fail that read once and let the retry worker
	// re-issue it on the surviving L0.
	backends[1].FailNextReads(1)

	buf := make([]byte, 512)
	n, err := ms.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 512, n)
	require.EqualValues(t, 1, ms.totalReads.Load())
	require.False(t, ms.legs[1].Alive())
	require.True(t, ms.legs[0].Alive())
}

func TestAllDeadDegradation(t *testing.T) {
	cfg, backends := newTestConfig("dev3", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	backends[0].FailNextWrites(1)
	backends[1].FailNextWrites(1)
	_, _ = ms.WriteAt(make([]byte, 512), 0)

	require.Nil(t, ms.DefaultLeg())

	_, err = ms.ReadAt(make([]byte, 512), 0)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeAllLegsDead))
}

func TestLogicalPartitionRouting(t *testing.T) {
	cfg, _ := newTestConfig("dev4", 4)
	cfg.Policy = PolicyLogicalPartition
	cfg.ChunkKiB = 128
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	require.Equal(t, 0, ms.selectReadLeg(0).Index)
	require.Equal(t, 1, ms.selectReadLeg(256).Index)
	require.Equal(t, 0, ms.selectReadLeg(1024).Index)
}

func TestReconfigInheritance(t *testing.T) {
	registry := NewRegistry(8)
	cfgA, _ := newTestConfig("dms0", 2)
	cfgA.Registry = registry
	a, err := New(cfgA)
	require.NoError(t, err)

	a.totalReads.Store(42)
	a.totalWrites.Store(99)
	a.suspended.Store(true)

	// B is constructed while A still occupies its slot — this is the
	// normal reconfig pattern: the upper layer loads a replacement
	// table for the same device before tearing the old one down.
	cfgB, _ := newTestConfig("dms0", 2)
	cfgB.Registry = registry
	b, err := New(cfgB)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Close())

	require.EqualValues(t, 42, b.totalReads.Load())
	require.EqualValues(t, 99, b.totalWrites.Load())
	require.True(t, b.suspended.Load())
	require.True(t, b.legs[0].Alive())
}

func TestStatusRoundTrip(t *testing.T) {
	cfg, _ := newTestConfig("dev5", 2)
	cfg.Legs[0].Device = "sda"
	cfg.Legs[0].Offset = 0
	cfg.Legs[1].Device = "sdb"
	cfg.Legs[1].Offset = 1000
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	table := ms.Table()

	parsed, err := ParseConstructionString("dev5", "round_robin 1 8 "+table)
	require.NoError(t, err)
	require.Equal(t, cfg.Legs, parsed.Legs)
}

func TestObserverWiredThroughReadsWritesFlush(t *testing.T) {
	cfg, _ := newTestConfig("dev9", 2)
	m := NewMetrics()
	cfg.Observer = NewMetricsObserver(m)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	_, err = ms.WriteAt(make([]byte, 512), 0)
	require.NoError(t, err)
	_, err = ms.ReadAt(make([]byte, 512), 0)
	require.NoError(t, err)
	require.NoError(t, ms.Flush())

	snap := m.Snapshot()
	require.EqualValues(t, 1, snap.WriteOps)
	require.EqualValues(t, 1, snap.ReadOps)
	require.EqualValues(t, 1, snap.FlushOps)
	require.EqualValues(t, 512, snap.WriteBytes)
	require.EqualValues(t, 512, snap.ReadBytes)
}

func TestDiscardFansOutAndZeroesEveryLeg(t *testing.T) {
	cfg, backends := newTestConfig("dev13", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = 0xAB
	}
	for _, b := range backends {
		_, werr := b.WriteAt(buf, 0)
		require.NoError(t, werr)
	}

	require.NoError(t, ms.DiscardAt(0, 512))

	read := make([]byte, 512)
	for _, b := range backends {
		_, rerr := b.ReadAt(read, 0)
		require.NoError(t, rerr)
		require.Equal(t, make([]byte, 512), read)
	}
}

func TestDiscardFailureSurfacesNotSupportedWithoutDegradingArray(t *testing.T) {
	cfg, backends := newTestConfig("dev14", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	backends[1].FailNextDiscards(1)

	err = ms.DiscardAt(0, 512)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeNotSupported))

	// discard is best-effort: it must never degrade the array.
	require.True(t, ms.legs[0].Alive())
	require.True(t, ms.legs[1].Alive())
	require.Equal(t, ms.legs[0], ms.DefaultLeg())
}

func TestDiscardAgainstLegLackingDiscarderSupportIsNotSupported(t *testing.T) {
	cfg, backends := newTestConfig("dev15", 2)
	cfg.Backends[1] = noDiscardBackend{Backend: backends[1]}
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	err = ms.DiscardAt(0, 512)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeNotSupported))
	require.True(t, ms.legs[0].Alive())
	require.True(t, ms.legs[1].Alive())
}

func TestCheckBlockReportsMismatch(t *testing.T) {
	cfg, backends := newTestConfig("dev7", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	buf := make([]byte, 512)
	_, err = backends[0].WriteAt(buf, 0)
	require.NoError(t, err)

	other := make([]byte, 512)
	other[10] = 0xFF
	_, err = backends[1].WriteAt(other, 0)
	require.NoError(t, err)

	report, err := ms.CheckBlock(0, 512)
	require.Error(t, err)
	require.NotNil(t, report)
	require.Equal(t, int64(10), report.ByteOffset)
	require.Equal(t, 0, report.LegA)
	require.Equal(t, 1, report.LegB)
}

func TestCheckBlockNoMismatch(t *testing.T) {
	cfg, _ := newTestConfig("dev8", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	report, err := ms.CheckBlock(0, 512)
	require.NoError(t, err)
	require.Nil(t, report)
}

func TestParseWeightedConstructionStringAppliesLegOverride(t *testing.T) {
	cfg, err := ParseConstructionString("dev10", "weighted 3 10 1 75 2 sda 0 sdb 0")
	require.NoError(t, err)
	require.Equal(t, PolicyWeighted, cfg.Policy)
	require.EqualValues(t, 10, cfg.Weight)
	require.True(t, cfg.WeightOverrideSet)
	require.Equal(t, 1, cfg.WeightOverrideLeg)
	require.EqualValues(t, 75, cfg.WeightOverrideValue)

	cfg.Backends = []Backend{NewFaultyBackend(4096), NewFaultyBackend(4096)}
	ms, err := New(*cfg)
	require.NoError(t, err)
	defer ms.Close()

	require.Equal(t, 1, ms.selectReadLeg(0).Index)
}

func TestDirectWeightedConfigLeavesAllLegsAtDefaultWeight(t *testing.T) {
	cfg, _ := newTestConfig("dev11", 3)
	cfg.Policy = PolicyWeighted
	cfg.Weight = 10
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	// No WeightOverrideSet: every leg keeps the default weight, so the
	// lowest index wins the tie rather than leg 0 being zeroed out.
	require.Equal(t, 0, ms.selectReadLeg(0).Index)
}

func TestCloseDrainsBufferedRetryRequestBeforeWorkerExits(t *testing.T) {
	cfg, _ := newTestConfig("dev16", 2)
	ms, err := New(cfg)
	require.NoError(t, err)

	// Bypass enqueueRetry and push directly onto the channel, standing
	// in for a caller whose send lands just ahead of Close — the race
	// this test guards against.
	sc := &scratch{sector: 0, size: 512, buf: make([]byte, 512), leg: ms.legs[0]}
	req := &retryRequest{sc: sc, done: make(chan retryOutcome, 1)}
	ms.retryQueue <- req

	closeDone := make(chan struct{})
	go func() {
		ms.Close()
		close(closeDone)
	}()

	select {
	case outcome := <-req.done:
		require.NoError(t, outcome.err)
	case <-time.After(2 * time.Second):
		t.Fatal("buffered retry request was never serviced before the worker exited")
	}

	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestPresuspendDrainsThenResumeAllowsRetry(t *testing.T) {
	cfg, backends := newTestConfig("dev12", 2)
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	require.False(t, ms.Postsuspend())
	ms.Presuspend()
	require.True(t, ms.Postsuspend())
	require.EqualValues(t, stateSuspended, ms.state.Load())

	ms.Resume()
	require.False(t, ms.Postsuspend())
	require.EqualValues(t, stateActive, ms.state.Load())

	// The first read goes to L1 (the round-robin cursor starts at the
	// last leg); failing it forces a retry through the worker.
	backends[1].FailNextReads(1)
	_, err = ms.ReadAt(make([]byte, 512), 0)
	require.NoError(t, err)
}

func TestControlIOBalanceAndSetWeight(t *testing.T) {
	cfg, _ := newTestConfig("dev6", 3)
	cfg.Policy = PolicyWeighted
	cfg.Weight = 10
	ms, err := New(cfg)
	require.NoError(t, err)
	defer ms.Close()

	_, err = ms.HandleIOCmd("set_weight", "2", "90")
	require.NoError(t, err)
	require.Equal(t, 2, ms.selectReadLeg(0).Index)

	err = ms.HandleIOBalance("round_robin", "ios", "4")
	require.NoError(t, err)
}
