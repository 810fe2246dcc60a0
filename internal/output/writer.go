package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/log"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
)

// Writer emits decoded operations somewhere outside the process.
type Writer interface {
	Write(op metadata.NFSOperation) error
	Close() error
}

// envelope is what every writer serializes.
type envelope struct {
	metadata.NFSOperation
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewWriter builds the writer selected by cfg.Output.Type.
func NewWriter(cfg config.Configuration, instanceID string) (Writer, error) {
	switch cfg.Output.Type {
	case config.OutputStdout, config.OutputFile:
		ew, err := log.NewEventWriter(cfg.Output, cfg.Logging)
		if err != nil {
			return nil, err
		}
		return &eventWriter{ew: ew, instanceID: instanceID}, nil
	case config.OutputNATS:
		nc, err := nats.Connect(cfg.Output.NATS.URL,
			nats.Name("nfsd-trace-"+instanceID),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warningf("nats disconnected: %v", err)
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats %s: %w", cfg.Output.NATS.URL, err)
		}
		return newNATSWriter(nc, cfg.Output.NATS.Subject, instanceID), nil
	default:
		return nil, fmt.Errorf("unknown output type %q", cfg.Output.Type)
	}
}

type eventWriter struct {
	ew         *log.EventWriter
	instanceID string
}

func (w *eventWriter) Write(op metadata.NFSOperation) error {
	return w.ew.Write(op, map[string]interface{}{
		"instance_id": w.instanceID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (w *eventWriter) Close() error {
	return w.ew.Close()
}

// natsConn is the subset of *nats.Conn the writer needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

type natsWriter struct {
	nc         natsConn
	subject    string
	instanceID string
}

func newNATSWriter(nc natsConn, subject, instanceID string) *natsWriter {
	return &natsWriter{nc: nc, subject: subject, instanceID: instanceID}
}

func (w *natsWriter) Write(op metadata.NFSOperation) error {
	data, err := json.Marshal(envelope{NFSOperation: op, InstanceID: w.instanceID, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	return w.nc.Publish(w.subject, data)
}

func (w *natsWriter) Close() error {
	defer w.nc.Close()
	return w.nc.Flush()
}

type discardWriter struct{}

func (discardWriter) Write(metadata.NFSOperation) error { return nil }
func (discardWriter) Close() error                      { return nil }

// Discard drops every operation; metrics are still updated.
var Discard Writer = discardWriter{}
