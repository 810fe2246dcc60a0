package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
)

const (
	InfoLogName  = "info.log"
	WarnLogName  = "warn.log"
	ErrorLogName = "error.log"
)

var (
	infoLogger  *lumberjack.Logger
	warnLogger  *lumberjack.Logger
	errorLogger *lumberjack.Logger
	logMu       sync.Mutex
)

func rotated(dir, name string, cfg config.LoggingConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
}

// InitLogger 初始化日志设置. 未配置日志目录或要求输出到 stderr 时 klog 直接写 stderr,
// 否则按级别写入 info/warn/error 三个滚动文件.
func InitLogger(cfg config.LoggingConfig) error {
	if cfg.ToStderr || cfg.Dir == "" {
		klog.LogToStderr(true)
		return nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logMu.Lock()
	infoLogger = rotated(cfg.Dir, InfoLogName, cfg)
	warnLogger = rotated(cfg.Dir, WarnLogName, cfg)
	errorLogger = rotated(cfg.Dir, ErrorLogName, cfg)
	logMu.Unlock()

	klog.LogToStderr(false)
	klog.SetOutput(&logWriter{})
	return nil
}

// Close flushes klog and closes the rotated files.
func Close() {
	klog.Flush()

	logMu.Lock()
	defer logMu.Unlock()
	for _, l := range []*lumberjack.Logger{infoLogger, warnLogger, errorLogger} {
		if l != nil {
			_ = l.Close()
		}
	}
}

// logWriter routes klog lines by their severity prefix.
type logWriter struct{}

func (w *logWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	logMu.Lock()
	defer logMu.Unlock()

	var logger *lumberjack.Logger
	switch p[0] {
	case 'W':
		logger = warnLogger
	case 'E', 'F':
		logger = errorLogger
	default:
		logger = infoLogger
	}
	if logger == nil {
		return os.Stderr.Write(p)
	}

	n, err = logger.Write(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "写入日志失败: %v\n", err)
	}
	return n, err
}

func Info(args ...interface{}) {
	klog.InfoDepth(1, args...)
}

func Infof(format string, args ...interface{}) {
	klog.InfoDepth(1, fmt.Sprintf(format, args...))
}

func Warningf(format string, args ...interface{}) {
	klog.WarningDepth(1, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	klog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

// Fatalf 写入格式化的致命错误日志并退出程序
func Fatalf(format string, args ...interface{}) {
	klog.FatalDepth(1, fmt.Sprintf(format, args...))
}
