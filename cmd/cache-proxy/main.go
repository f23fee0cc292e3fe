// Command cache-proxy is a caching forward HTTP proxy: a bounded,
// content-addressed cache sits between clients and origin servers,
// coalescing concurrent identical GET requests onto a single origin
// fetch and streaming the response to every waiting client as it
// arrives.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/avdonina/cacheproxy/internal/adminserver"
	"github.com/avdonina/cacheproxy/internal/cache"
	"github.com/avdonina/cacheproxy/internal/config"
	"github.com/avdonina/cacheproxy/internal/listener"
	"github.com/avdonina/cacheproxy/internal/logging"
	"github.com/avdonina/cacheproxy/internal/pool"
	"github.com/avdonina/cacheproxy/internal/proxy"
)

func main() {
	bootstrapLogger := logging.New(os.Stdout)

	cfg, err := config.Load(os.Args[1:], bootstrapLogger)
	if err != nil {
		level.Error(bootstrapLogger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := level.NewFilter(bootstrapLogger, cfg.Level())
	level.Info(log.With(logger, "thread", "main")).Log(
		"msg", "Proxy PID", "pid", os.Getpid(),
	)

	if err := run(cfg, logger); err != nil {
		level.Error(log.With(logger, "thread", "main")).Log("msg", "fatal error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	mainLog := log.With(logger, "thread", "main")

	c := cache.New(cache.Config{
		Capacity:    cfg.CacheCapacity,
		BucketCount: cfg.CacheBucketCount,
		ExpiryMs:    cfg.CacheExpiryMs,
	}, logger)

	workerPool := pool.New(pool.Config{
		Workers:       cfg.ThreadPoolSize,
		QueueCapacity: cfg.QueueCapacity,
	}, logger)

	h := &proxy.Handler{
		Cache:      c,
		Logger:     logger,
		IOTimeout:  time.Duration(cfg.IOTimeoutMs) * time.Millisecond,
		BufferSize: cfg.BufferSize,
	}

	ln, err := listener.New(listener.Config{
		Port:          cfg.Port,
		Backlog:       cfg.ListenBacklog,
		AcceptTimeout: time.Duration(cfg.AcceptTimeoutMs) * time.Millisecond,
	}, logger, func(conn net.Conn) {
		workerPool.Submit(func() { h.Handle(conn) })
	})
	if err != nil {
		return err
	}

	var admin *adminserver.Server
	group, gctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return ln.Run(gctx)
	})

	if cfg.AdminAddr != "" {
		admin = adminserver.New(cfg.AdminAddr, c, workerPool, cfg.CacheCapacity, logger)
		group.Go(func() error {
			level.Info(mainLog).Log("msg", "admin server listening", "addr", cfg.AdminAddr)
			return admin.Run()
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		level.Info(mainLog).Log("msg", "received signal, shutting down", "signal", s.String())
	case <-gctx.Done():
	}

	// Graceful shutdown order (C7): listener first, then the worker
	// pool drains and joins in-flight handler tasks, then the cache
	// stops and joins its reaper. In-flight handlers still hold shared
	// entry handles until they finish streaming; the cache does not
	// free an entry until every handle drops.
	_ = ln.Close()
	if admin != nil {
		_ = admin.Close()
	}
	workerPool.Shutdown()
	c.Destroy()

	if err := group.Wait(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	level.Info(mainLog).Log("msg", "shutdown complete")
	return nil
}
