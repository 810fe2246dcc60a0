package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
)

func record(size uint32) *event.Record {
	return &event.Record{Op: event.OpRead, Size: size, Version: event.NFSv3}
}

func decode(t *testing.T, s *Sample) event.Record {
	t.Helper()
	var rec event.Record
	require.NoError(t, rec.Unmarshal(s.RawSample[:]))
	return rec
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 8)
	assert.Error(t, err)
	_, err = New(2, 0)
	assert.Error(t, err)

	p, err := New(3, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, p.CPUs())
	assert.Len(t, p.segments[0].slots, 8)
}

func TestPublishDropsWhenFull(t *testing.T) {
	p, err := New(1, 4)
	require.NoError(t, err)

	for i := uint32(0); i < 4; i++ {
		assert.True(t, p.Publish(0, record(i)))
	}
	assert.False(t, p.Publish(0, record(99)))
	assert.False(t, p.Publish(0, record(100)))

	r := p.Reader()
	var s Sample

	require.True(t, r.TryRead(&s))
	assert.Equal(t, uint64(2), s.LostSamples)

	for i := uint32(0); i < 4; i++ {
		require.True(t, r.TryRead(&s))
		assert.Zero(t, s.LostSamples)
		assert.Equal(t, i, decode(t, &s).Size)
	}
	assert.False(t, r.TryRead(&s))

	// space is reusable after draining
	assert.True(t, p.Publish(0, record(5)))
	require.True(t, r.TryRead(&s))
	assert.Equal(t, uint32(5), decode(t, &s).Size)

	assert.Equal(t, []Stats{{CPU: 0, Published: 5, Lost: 2}}, p.Stats())
}

func TestSmallestSegmentDropsInsteadOfOverwriting(t *testing.T) {
	p, err := New(1, 1)
	require.NoError(t, err)
	assert.Len(t, p.segments[0].slots, minSegment)

	assert.True(t, p.Publish(0, record(1)))
	assert.True(t, p.Publish(0, record(2)))
	assert.False(t, p.Publish(0, record(3)))

	r := p.Reader()
	var (
		s    Sample
		got  []uint32
		lost uint64
	)
	for r.TryRead(&s) {
		if s.LostSamples > 0 {
			lost += s.LostSamples
			continue
		}
		got = append(got, decode(t, &s).Size)
	}
	assert.Equal(t, []uint32{1, 2}, got)
	assert.Equal(t, uint64(1), lost)
	assert.Equal(t, []Stats{{CPU: 0, Published: 2, Lost: 1}}, p.Stats())
}

func TestReaderRoundRobin(t *testing.T) {
	p, err := New(2, 4)
	require.NoError(t, err)

	p.Publish(0, record(1))
	p.Publish(0, record(2))
	p.Publish(1, record(10))
	p.Publish(3, record(11)) // wraps to cpu 1

	r := p.Reader()
	var (
		s    Sample
		cpus []int
		got  []uint32
	)
	for r.TryRead(&s) {
		cpus = append(cpus, s.CPU)
		got = append(got, decode(t, &s).Size)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, cpus)
	assert.Equal(t, []uint32{1, 10, 2, 11}, got)
}

func TestReadBlocksUntilCloseOrCancel(t *testing.T) {
	p, err := New(1, 4)
	require.NoError(t, err)
	r := p.Reader()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var s Sample
	assert.ErrorIs(t, r.Read(ctx, &s), context.DeadlineExceeded)

	p.Publish(0, record(7))
	require.NoError(t, p.Close())
	assert.False(t, p.Publish(0, record(8)))

	require.NoError(t, r.Read(context.Background(), &s))
	assert.Equal(t, uint64(1), s.LostSamples)
	require.NoError(t, r.Read(context.Background(), &s))
	assert.Equal(t, uint32(7), decode(t, &s).Size)
	assert.ErrorIs(t, r.Read(context.Background(), &s), ErrClosed)
}

func TestReadWaitsForPublishRacingClose(t *testing.T) {
	p, err := New(1, 4)
	require.NoError(t, err)
	r := p.Reader()

	// a producer that passed the closed check before Close
	seg := p.segments[0]
	seg.inflight.Add(1)
	require.NoError(t, p.Close())

	var s Sample
	errc := make(chan error, 1)
	go func() { errc <- r.Read(context.Background(), &s) }()

	select {
	case err := <-errc:
		t.Fatalf("Read returned %v before the racing publish finished", err)
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, seg.push(record(42)))
	seg.inflight.Add(-1)

	require.NoError(t, <-errc)
	assert.Equal(t, uint32(42), decode(t, &s).Size)
	assert.ErrorIs(t, r.Read(context.Background(), &s), ErrClosed)
}

func TestConcurrentPublishNeverDuplicates(t *testing.T) {
	const (
		cpus    = 8
		perCPU  = 5000
		segSize = 64
	)
	p, err := New(cpus, segSize)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for cpu := 0; cpu < cpus; cpu++ {
		wg.Add(1)
		go func(cpu int) {
			defer wg.Done()
			for i := 0; i < perCPU; i++ {
				p.Publish(cpu, record(uint32(cpu<<20|i)))
			}
		}(cpu)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		p.Close()
		close(done)
	}()

	r := p.Reader()
	seen := make(map[uint32]bool)
	last := make(map[int]int)
	var lost uint64
	var s Sample
	for {
		err := r.Read(context.Background(), &s)
		if err == ErrClosed {
			break
		}
		require.NoError(t, err)
		if s.LostSamples > 0 {
			lost += s.LostSamples
			continue
		}
		size := decode(t, &s).Size
		require.False(t, seen[size], "duplicate record %x", size)
		seen[size] = true

		cpu, seq := int(size>>20), int(size&0xfffff)
		require.Equal(t, s.CPU, cpu)
		if prev, ok := last[cpu]; ok {
			require.Greater(t, seq, prev, "segment order")
		}
		last[cpu] = seq
	}
	<-done

	assert.Equal(t, uint64(cpus*perCPU), uint64(len(seen))+lost)
	assert.LessOrEqual(t, len(seen), cpus*perCPU)
}
