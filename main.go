package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tankarena/config"
	"tankarena/server"
)

// tankarena 入口：UDP 会话服务 + 可选 WebSocket 网关 + 可选管理接口
func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "path to YAML config file")
	flag.StringVar(&addr, "addr", "", "UDP listen address, overrides config, e.g. :9999")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.UDPAddr = addr
	}

	// zap 日志写入文件（lumberjack 滚动）
	log, err := server.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger(log)

	udp, err := server.ListenUDP(cfg.Server.UDPAddr, log)
	if err != nil {
		log.Fatalf("listen udp: %v", err)
	}

	mux := server.TransportMux{"udp": udp}
	var opts []server.Option
	if cfg.Events.NATSURL != "" {
		pub, err := server.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, log)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		opts = append(opts, server.WithEvents(pub))
	}
	srv := server.New(cfg, mux, log, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// 传输层要在调度协程启动前注册完毕
	var ws *server.WSTransport
	if cfg.Server.WSAddr != "" {
		ws = server.NewWSTransport(srv.Deliver, log)
		mux["ws"] = ws
	}

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return udp.Serve(ctx, srv.Deliver) })

	if ws != nil {
		wsMux := http.NewServeMux()
		wsMux.Handle("/ws", ws)
		g.Go(func() error {
			defer ws.Close()
			return serveHTTP(ctx, &http.Server{Addr: cfg.Server.WSAddr, Handler: wsMux}, log.Infof)
		})
	}
	if cfg.Server.AdminAddr != "" {
		g.Go(func() error {
			return serveHTTP(ctx, &http.Server{Addr: cfg.Server.AdminAddr, Handler: server.NewAdminHandler(srv)}, log.Infof)
		})
	}

	log.Infof("tankarena listening on udp %s", cfg.Server.UDPAddr)
	if err := g.Wait(); err != nil {
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Shutting down...")
}

// serveHTTP 运行 HTTP 服务，ctx 结束时优雅关闭
func serveHTTP(ctx context.Context, hs *http.Server, logf func(string, ...any)) error {
	errCh := make(chan error, 1)
	go func() {
		logf("http listening on %s", hs.Addr)
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
