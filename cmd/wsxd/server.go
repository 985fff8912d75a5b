package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/wsx/middleware"
	"github.com/tokmz/wsx/pkg/linetransport"
	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/metrics"
	"github.com/tokmz/wsx/pkg/socket"
	"github.com/tokmz/wsx/pkg/tracing"
	"github.com/tokmz/wsx/pkg/wsconn"
)

// server 组装 Registry、HTTP 与 TCP 入口
type server struct {
	cfg    *Config
	log    logger.Logger
	reg    *socket.Registry
	engine *gin.Engine
	http   *http.Server
	tcp    *linetransport.Server
	tp     *sdktrace.TracerProvider

	httpLn net.Listener
	tcpLn  net.Listener
}

func newServer(ctx context.Context, cfg *Config, log logger.Logger) (*server, error) {
	s := &server{cfg: cfg, log: log}

	tp, err := tracing.NewTracerProvider(ctx, &cfg.Tracing)
	if err != nil {
		return nil, err
	}
	s.tp = tp

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = "wsx"
	}

	opts := []socket.Option{
		socket.WithOptions(cfg.Socket),
		socket.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, socket.WithMetrics(metrics.New(metrics.WithRegistry(promReg), metrics.WithNamespace(namespace))))
	}
	reg, err := socket.NewRegistry(opts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	s.reg = reg

	table, err := builtinHandlers(log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	reg.SetHandlers(table)

	if err := s.setupHTTP(promReg); err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	if cfg.Server.TCPAddr != "" {
		lineOpts := []linetransport.Option{
			linetransport.WithIdleTimeout(cfg.Server.IdleTimeout),
			linetransport.WithWriteWait(cfg.WS.WriteWait),
		}
		if cfg.WS.MaxMessageSize > 0 {
			lineOpts = append(lineOpts, linetransport.WithMaxLineSize(int(cfg.WS.MaxMessageSize)))
		}
		s.tcp = linetransport.NewServer(reg,
			linetransport.WithLogger(log),
			linetransport.WithTransportOptions(lineOpts...),
		)
	}
	return s, nil
}

func (s *server) setupHTTP(promReg *prometheus.Registry) error {
	gin.SetMode(s.cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Logger(s.log, &middleware.LoggerConfig{
		ExcludePaths: []string{"/healthz", s.cfg.Metrics.Path},
	}))
	if len(s.cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(s.cfg.Server.TrustedProxies); err != nil {
			return err
		}
	}

	up, err := wsconn.NewUpgrader(s.cfg.WS)
	if err != nil {
		return err
	}
	keyFunc := wsconn.RandomKey
	if s.cfg.Server.KeyParam != "" {
		keyFunc = wsconn.QueryKey(s.cfg.Server.KeyParam)
	}

	engine.GET(s.cfg.Server.WSPath, tracing.Gin(), wsconn.Handler(s.reg, up,
		wsconn.WithKeyFunc(keyFunc),
		wsconn.WithLogger(s.log),
	))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": s.reg.Len(),
		})
	})
	if s.cfg.Metrics.Enabled {
		engine.GET(s.cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	s.engine = engine
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return nil
}

// listen 打开监听端口，地址可以使用 :0
func (s *server) listen() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return err
	}
	s.httpLn = ln

	if s.tcp != nil {
		tcpLn, err := net.Listen("tcp", s.cfg.Server.TCPAddr)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.tcpLn = tcpLn
	}
	return nil
}

// run 启动服务直到 ctx 取消，然后优雅关机
func (s *server) run(ctx context.Context) error {
	if s.httpLn == nil {
		if err := s.listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http_server_started", zap.String("addr", s.httpLn.Addr().String()))
		if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.tcp != nil {
		g.Go(func() error {
			return s.tcp.Serve(gctx, s.tcpLn)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown 依次关闭 HTTP、全部连接和链路追踪
func (s *server) shutdown() error {
	s.log.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(s.cfg.Server.ShutdownTimeout))
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.reg.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.tp.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("server_stopped")
	_ = s.log.Sync()
	return errors.Join(errs...)
}

// addrs 实际监听地址，用于 banner 和测试
func (s *server) addrs() (httpAddr, tcpAddr string) {
	if s.httpLn != nil {
		httpAddr = s.httpLn.Addr().String()
	}
	if s.tcpLn != nil {
		tcpAddr = s.tcpLn.Addr().String()
	}
	return
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
