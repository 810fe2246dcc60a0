package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/log"
)

const shutdownTimeout = 5 * time.Second

// ginLogger 实现了 io.Writer 接口
type ginLogger struct{}

func (g *ginLogger) Write(p []byte) (n int, err error) {
	klog.V(3).Info(string(p))
	return len(p), nil
}

// ReadyFunc reports whether the tracer is serving. A nil error means ready.
type ReadyFunc func() error

type Server struct {
	router *gin.Engine
	server http.Server
}

func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// NewServer serves /metrics from gatherer, plus the health and pprof routes.
func NewServer(addr string, gatherer prometheus.Gatherer, ready ReadyFunc, middleware ...gin.HandlerFunc) *Server {
	// 设置 Gin 的模式为发布模式
	gin.SetMode(gin.ReleaseMode)

	// 创建一个新的 Gin 引擎，不使用默认的中间件
	r := gin.New()
	r.Use(gin.LoggerWithWriter(io.MultiWriter(&ginLogger{})))
	r.Use(gin.Recovery())
	r.Use(middleware...)

	r.GET("/ping", Ping)
	InitProbe(r, ready)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	pprof.Register(r)

	return &Server{
		router: r,
		server: http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	klog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	klog.Info("Server exiting")
	return nil
}

func InitProbe(r *gin.Engine, ready ReadyFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if ready != nil {
			if err := ready(); err != nil {
				c.String(http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
}
