package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
)

// EventWriter writes one JSON object per line.
type EventWriter struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewEventWriter returns a stdout writer, or a rotated file writer for
// output type file.
func NewEventWriter(out config.OutputConfig, logging config.LoggingConfig) (*EventWriter, error) {
	switch out.Type {
	case config.OutputFile:
		if out.File.Path == "" {
			return nil, fmt.Errorf("output type file needs a path")
		}
		l := &lumberjack.Logger{
			Filename:   out.File.Path,
			MaxSize:    logging.MaxSize,
			MaxBackups: logging.MaxBackups,
			MaxAge:     logging.MaxAge,
			Compress:   true,
		}
		return &EventWriter{w: l, c: l}, nil
	default:
		return &EventWriter{w: os.Stdout}, nil
	}
}

// NewEventWriterTo writes to w. Mostly useful in tests.
func NewEventWriterTo(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// Write 将多个参数合并为一个 JSON 对象后输出一行
func (e *EventWriter) Write(args ...interface{}) error {
	raw, err := json.Marshal(MergeToUnstructured(args...))
	if err != nil {
		return fmt.Errorf("无法将参数转换为 JSON: %w", err)
	}
	raw = append(raw, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(raw)
	return err
}

func (e *EventWriter) Close() error {
	if e.c == nil {
		return nil
	}
	return e.c.Close()
}

// MergeToUnstructured 将多个参数合并为一个 map[string]interface{}
func MergeToUnstructured(args ...interface{}) map[string]interface{} {
	mergedMap := make(map[string]interface{})
	for _, arg := range args {
		unstructured, err := toUnstructured(arg)
		if err != nil {
			klog.Warningf("无法转换参数为 unstructured 格式: %v", err)
			continue
		}
		merge(mergedMap, unstructured)
	}
	return mergedMap
}

// merge 递归合并两个 map
func merge(target, source map[string]interface{}) {
	for k, v := range source {
		existingMap, isMap := target[k].(map[string]interface{})
		sourceMap, srcIsMap := v.(map[string]interface{})
		if isMap && srcIsMap {
			merge(existingMap, sourceMap)
			continue
		}
		target[k] = v
	}
}

func toUnstructured(v interface{}) (map[string]interface{}, error) {
	switch t := v.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return t, nil
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(t), &m); err == nil {
			return m, nil
		}
		return map[string]interface{}{"value": t}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return map[string]interface{}{"value": v}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
