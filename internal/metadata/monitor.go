package metadata

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cen-ngc5139/nfsd-trace/internal/log"
)

// ExportMonitor polls the export tables and reports changes to callback.
type ExportMonitor struct {
	callback     func([]Export)
	tables       []string
	stopChan     chan struct{}
	doneChan     chan struct{}
	isRunning    bool
	mutex        sync.Mutex
	pollInterval time.Duration
	lastExports  []Export
	lastTable    string
}

// NewExportMonitor watches the first readable table in tables.
func NewExportMonitor(tables []string, callback func([]Export), pollInterval time.Duration) *ExportMonitor {
	return &ExportMonitor{
		callback:     callback,
		tables:       tables,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		pollInterval: pollInterval,
	}
}

// Start reads the tables once synchronously, then keeps polling.
func (m *ExportMonitor) Start() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isRunning {
		return
	}

	m.checkExports()
	m.isRunning = true
	go m.poll()
}

func (m *ExportMonitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.isRunning {
		return
	}

	close(m.stopChan)
	<-m.doneChan
	m.isRunning = false
}

func (m *ExportMonitor) poll() {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkExports()
		case <-m.stopChan:
			return
		}
	}
}

func (m *ExportMonitor) checkExports() {
	exports, table, err := readFirst(m.tables)
	if err != nil {
		log.Errorf("解析导出表失败: %v", err)
		return
	}

	if table != m.lastTable {
		log.Infof("使用导出表 %s", table)
		m.lastTable = table
	}

	if m.lastExports == nil || !compareExports(m.lastExports, exports) {
		log.Infof("检测到导出表变化, 共 %d 个导出", len(exports))
		m.callback(exports)
		m.lastExports = exports
	}
}

func readFirst(tables []string) ([]Export, string, error) {
	var errs []error
	for _, table := range tables {
		exports, err := ParseExports(table)
		if err == nil {
			if exports == nil {
				exports = []Export{}
			}
			return exports, table, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("no export table found in %v", tables)
	}
	return nil, "", errors.Join(errs...)
}

func compareExports(a, b []Export) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
