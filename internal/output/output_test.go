package output

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
	"github.com/cen-ngc5139/nfsd-trace/internal/sink"
)

type recordingWriter struct {
	mu  sync.Mutex
	ops []metadata.NFSOperation
	err error
}

func (w *recordingWriter) Write(op metadata.NFSOperation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, op)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func record(op event.Op, version event.Version, size, addr uint32, path string) *event.Record {
	r := &event.Record{Op: op, Version: version, Size: size, Addr: addr}
	r.SetExportPath(path)
	return r
}

func TestProcessorRingSource(t *testing.T) {
	s, err := sink.New(2, 2)
	require.NoError(t, err)

	require.True(t, s.Publish(0, record(event.OpWrite, event.NFSv4, 4096, 0xCB007107, "exports")))
	require.True(t, s.Publish(0, record(event.OpRead, event.NFSv4, 100, 0xCB007107, "exports")))
	require.False(t, s.Publish(0, record(event.OpRead, event.NFSv4, 1, 0xCB007107, "exports")), "segment is full")
	require.True(t, s.Publish(1, record(event.OpWrite, event.NFSv3, 512, 0x0A000001, "")))
	require.True(t, s.Publish(1, record(event.OpRead, event.NFSv3, 256, 0x0A000001, "")))

	reg := prometheus.NewRegistry()
	m := NewNFSMetrics(reg)
	w := &recordingWriter{}
	p := NewProcessor(NewRingSource(s), m, w)

	require.NoError(t, s.Close())
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, uint64(4), p.Processed())
	assert.Equal(t, uint64(1), p.Lost())
	assert.Equal(t, uint64(0), p.Failed())
	assert.Len(t, w.ops, 4)

	assert.Equal(t, 4096.0, testutil.ToFloat64(m.NFS4WriteBytes.WithLabelValues("203.0.113.7", "exports", "4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NFS4WriteOperations.WithLabelValues("203.0.113.7", "exports", "4")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.NFS4ReadBytes.WithLabelValues("203.0.113.7", "exports", "4")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.NFS3WriteBytes.WithLabelValues("10.0.0.1", "3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NFS3ReadOperations.WithLabelValues("10.0.0.1", "3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LostSamples.WithLabelValues("0")))

	n, err := testutil.GatherAndCount(reg, NFS3WriteBytes, NFS4ReadOperations)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type fakeSource struct {
	samples []Sample
	closed  bool
}

func (f *fakeSource) Read(ctx context.Context) (Sample, error) {
	if len(f.samples) == 0 {
		return Sample{}, ErrClosed
	}
	s := f.samples[0]
	f.samples = f.samples[1:]
	return s, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestProcessorDecodeErrors(t *testing.T) {
	var good [event.Size]byte
	record(event.OpRead, event.NFSv4, 7, 0x7F000001, "x").MarshalTo(good[:])

	src := &fakeSource{samples: []Sample{
		{CPU: 0, Raw: []byte{1, 2, 3}},
		{CPU: 1, Raw: good[:]},
	}}
	reg := prometheus.NewRegistry()
	m := NewNFSMetrics(reg)
	w := &recordingWriter{err: errors.New("broken pipe")}
	p := NewProcessor(src, m, w)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, uint64(1), p.Failed())
	assert.Equal(t, uint64(1), p.Processed())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	require.Len(t, w.ops, 1)
	assert.Equal(t, "x", w.ops[0].Export)
	assert.Equal(t, 1, w.ops[0].CPU)

	require.NoError(t, p.Close())
	assert.True(t, src.closed)
}

func TestProcessorStopsOnCancel(t *testing.T) {
	s, err := sink.New(1, 4)
	require.NoError(t, err)

	p := NewProcessor(NewRingSource(s), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.True(t, s.Publish(0, record(event.OpRead, event.NFSv3, 1, 1, "")))
	assert.Eventually(t, func() bool { return p.Processed() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestMetricsIgnoreUnknownVersion(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNFSMetrics(reg)
	m.Observe(metadata.NFSOperation{Op: "WRITE", Version: 2, Client: "10.0.0.1", Size: 1})

	n, err := testutil.GatherAndCount(reg, NFS4WriteBytes, NFS3WriteBytes, NFS3WriteOperations)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type mockNATSConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	closed    bool
}

func (m *mockNATSConn) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nats.ErrConnectionClosed
	}
	if m.published == nil {
		m.published = map[string][][]byte{}
	}
	m.published[subject] = append(m.published[subject], data)
	return nil
}

func (m *mockNATSConn) Flush() error { return nil }

func (m *mockNATSConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func TestNATSWriter(t *testing.T) {
	nc := &mockNATSConn{}
	w := newNATSWriter(nc, "nfsd.events", "instance-1")

	require.NoError(t, w.Write(metadata.NFSOperation{Op: "READ", Size: 9, Version: 4, Client: "10.0.0.9", Export: "data"}))
	require.Len(t, nc.published["nfsd.events"], 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(nc.published["nfsd.events"][0], &got))
	assert.Equal(t, "READ", got["op"])
	assert.Equal(t, "data", got["export"])
	assert.Equal(t, "instance-1", got["instance_id"])
	assert.Contains(t, got, "timestamp")

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(metadata.NFSOperation{}), nats.ErrConnectionClosed)
}

func TestFileWriter(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Type = config.OutputFile
	cfg.Output.File.Path = filepath.Join(t.TempDir(), "events.json")

	w, err := NewWriter(cfg, "instance-2")
	require.NoError(t, err)
	require.NoError(t, w.Write(metadata.NFSOperation{Op: "WRITE", Size: 3, Version: 3, Client: "10.0.0.3"}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(cfg.Output.File.Path)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &got))
	assert.Equal(t, "WRITE", got["op"])
	assert.Equal(t, "instance-2", got["instance_id"])
	assert.NotContains(t, got, "export")
}

func TestNewWriterUnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Type = "kafka"
	_, err := NewWriter(cfg, "x")
	assert.Error(t, err)
}
