package run

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
	"github.com/cen-ngc5139/nfsd-trace/internal/sim"
)

func TestTaskManager(t *testing.T) {
	tm := NewTaskManager()
	tm.Add("a", func(context.Context) error { return nil })
	tm.Add("b", func(context.Context) error { return nil })

	_, ok := tm.Get("a")
	assert.True(t, ok)
	assert.Len(t, tm.List(), 2)

	assert.True(t, tm.Delete("a"))
	assert.False(t, tm.Delete("a"))
	_, ok = tm.Get("a")
	assert.False(t, ok)

	assert.NoError(t, tm.Run(context.Background()))
}

func TestTaskManagerCancelsOnFailure(t *testing.T) {
	var cancelled atomic.Bool

	tm := NewTaskManager()
	tm.Add("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return nil
	})
	tm.Add("failing", func(context.Context) error {
		return errors.New("boom")
	})

	done := make(chan error, 1)
	go func() { done <- tm.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failing")
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("task manager did not return")
	}
	assert.True(t, cancelled.Load())
}

func simConfig() config.Configuration {
	cfg := config.Default()
	cfg.Server.Enabled = false
	cfg.Simulate.CPUs = 4
	cfg.Simulate.CallsPerCPU = 2000
	cfg.Simulate.NonIPv4Ratio = 0.1
	cfg.Simulate.BrokenRatio = 0.05
	return cfg
}

func TestSimulate(t *testing.T) {
	defer metadata.UpdateExportCache(nil)

	cfg := simConfig()
	report, err := Simulate(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, report.Check())

	assert.Equal(t, uint64(8000), report.Workload.Fired)
	assert.NotZero(t, report.Filtered)
	assert.NotZero(t, report.Published)
	assert.Len(t, report.Sink, 4)

	path, ok := metadata.LookupExportPath("exports")
	assert.True(t, ok)
	assert.Equal(t, "/srv/nfs/exports", path)
}

func TestSimulateSaturatedSink(t *testing.T) {
	defer metadata.UpdateExportCache(nil)

	cfg := simConfig()
	cfg.Simulate.SegmentSize = 1

	report, err := Simulate(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, report.Check())
	assert.NotZero(t, report.Published)
}

func TestSimulateProgress(t *testing.T) {
	defer metadata.UpdateExportCache(nil)

	cfg := simConfig()
	cfg.Simulate.CallsPerCPU = 100
	var buf bytes.Buffer

	report, err := Simulate(context.Background(), cfg, &buf)
	require.NoError(t, err)
	require.NoError(t, report.Check())
	assert.Equal(t, uint64(400), report.Workload.Fired)
}

func TestSimulateInvalidConfig(t *testing.T) {
	cfg := simConfig()
	cfg.Simulate.CPUs = 0

	_, err := Simulate(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestSimulateCancelled(t *testing.T) {
	defer metadata.UpdateExportCache(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Simulate(ctx, simConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, report.Processed, report.Published)
}

func TestReportCheck(t *testing.T) {
	good := Report{
		Workload:  sim.Stats{Fired: 10, NonIPv4: 2},
		Published: 6, Filtered: 2, Dropped: 2,
		Processed: 6, Lost: 2,
	}
	assert.NoError(t, good.Check())

	bad := good
	bad.Processed = 5
	assert.Error(t, bad.Check())

	bad = good
	bad.Lost = 1
	assert.Error(t, bad.Check())

	bad = good
	bad.Dropped = 3
	assert.Error(t, bad.Check())
	assert.Contains(t, good.String(), "published=6")
}
