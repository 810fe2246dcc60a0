package output

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
)

const (
	NFS4ReadBytes       = "nfs4_read_bytes_total"
	NFS4WriteBytes      = "nfs4_write_bytes_total"
	NFS4ReadOperations  = "nfs4_read_operations_total"
	NFS4WriteOperations = "nfs4_write_operations_total"
	NFS3ReadBytes       = "nfs3_read_bytes_total"
	NFS3WriteBytes      = "nfs3_write_bytes_total"
	NFS3ReadOperations  = "nfs3_read_operations_total"
	NFS3WriteOperations = "nfs3_write_operations_total"
	LostSamples         = "nfsd_trace_lost_samples_total"
	DecodeErrors        = "nfsd_trace_decode_errors_total"
)

// NFSMetrics holds all the NFS related metrics
type NFSMetrics struct {
	NFS4ReadBytes       *prometheus.CounterVec
	NFS4WriteBytes      *prometheus.CounterVec
	NFS4ReadOperations  *prometheus.CounterVec
	NFS4WriteOperations *prometheus.CounterVec
	NFS3ReadBytes       *prometheus.CounterVec
	NFS3WriteBytes      *prometheus.CounterVec
	NFS3ReadOperations  *prometheus.CounterVec
	NFS3WriteOperations *prometheus.CounterVec
	LostSamples         *prometheus.CounterVec
	DecodeErrors        prometheus.Counter
}

// NewNFSMetrics 创建并注册 NFS 指标
func NewNFSMetrics(reg prometheus.Registerer) *NFSMetrics {
	factory := promauto.With(reg)

	// v4 记录带导出路径, v3 没有
	v4 := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help},
			[]string{"client", "path", "version"})
	}
	v3 := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help},
			[]string{"client", "version"})
	}

	return &NFSMetrics{
		NFS4ReadBytes:       v4(NFS4ReadBytes, "Total bytes read from NFS v4 by client and path"),
		NFS4WriteBytes:      v4(NFS4WriteBytes, "Total bytes written to NFS v4 by client and path"),
		NFS4ReadOperations:  v4(NFS4ReadOperations, "Total number of NFS v4 read operations by client and path"),
		NFS4WriteOperations: v4(NFS4WriteOperations, "Total number of NFS v4 write operations by client and path"),
		NFS3ReadBytes:       v3(NFS3ReadBytes, "Total bytes read from NFS v3 by client"),
		NFS3WriteBytes:      v3(NFS3WriteBytes, "Total bytes written to NFS v3 by client"),
		NFS3ReadOperations:  v3(NFS3ReadOperations, "Total number of NFS v3 read operations by client"),
		NFS3WriteOperations: v3(NFS3WriteOperations, "Total number of NFS v3 write operations by client"),
		LostSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: LostSamples,
			Help: "Records dropped because a per-CPU buffer was full",
		}, []string{"cpu"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: DecodeErrors,
			Help: "Samples that could not be decoded into a record",
		}),
	}
}

// Observe accounts one operation. Records with an unknown version are only
// written, never counted.
func (m *NFSMetrics) Observe(op metadata.NFSOperation) {
	version := strconv.FormatUint(uint64(op.Version), 10)
	write := op.Op == event.OpWrite.String()
	size := float64(op.Size)

	switch event.Version(op.Version) {
	case event.NFSv4:
		path := op.Export
		if write {
			m.NFS4WriteBytes.WithLabelValues(op.Client, path, version).Add(size)
			m.NFS4WriteOperations.WithLabelValues(op.Client, path, version).Inc()
		} else {
			m.NFS4ReadBytes.WithLabelValues(op.Client, path, version).Add(size)
			m.NFS4ReadOperations.WithLabelValues(op.Client, path, version).Inc()
		}
	case event.NFSv3:
		if write {
			m.NFS3WriteBytes.WithLabelValues(op.Client, version).Add(size)
			m.NFS3WriteOperations.WithLabelValues(op.Client, version).Inc()
		} else {
			m.NFS3ReadBytes.WithLabelValues(op.Client, version).Add(size)
			m.NFS3ReadOperations.WithLabelValues(op.Client, version).Inc()
		}
	}
}

func (m *NFSMetrics) Lost(cpu int, n uint64) {
	m.LostSamples.WithLabelValues(strconv.Itoa(cpu)).Add(float64(n))
}
