// Copyright 2024-2025 Ali Sufyan Baig
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command interface-lb is a forwarding HTTP/HTTPS proxy that spreads
// outbound traffic across the host's network interfaces, steering new
// sessions toward the healthiest and least loaded egress path.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/balancer"
	"github.com/alisufyanbaig-dev/internet-load-balancer/config"
	"github.com/alisufyanbaig-dev/internet-load-balancer/forwarder"
	"github.com/alisufyanbaig-dev/internet-load-balancer/health"
	"github.com/alisufyanbaig-dev/internet-load-balancer/httpapi"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"github.com/alisufyanbaig-dev/internet-load-balancer/logger"
	"github.com/alisufyanbaig-dev/internet-load-balancer/stats"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const drainTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "path to optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		zap.NewExample().Fatal("loading configuration", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := egressInterfaces(cfg, log)
	if err != nil {
		return err
	}

	registry, err := intf.NewRegistry(cfg.Policy(), log)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := registry.Register(id); err != nil {
			return err
		}
	}

	bal, err := balancer.New(registry, cfg.Policy(), cfg.Weights(), log)
	if err != nil {
		return err
	}
	handler := forwarder.NewHandler(bal, registry, cfg.Policy(), cfg.Proxy.HeaderTimeout, log)

	monitor := health.NewMonitor(registry, health.NewDialProber(cfg.Health.ProbeTarget), cfg.Policy(), log)
	monitor.Start(ctx)
	defer func() { _ = monitor.Close() }()

	aggregator := stats.NewAggregator(registry)
	reporter := stats.NewReporter(aggregator, cfg.Admin.ReportInterval, log)
	reporter.Start(ctx)
	defer func() { _ = reporter.Close() }()

	listener, err := net.Listen("tcp", cfg.Proxy.ListenAddr)
	if err != nil {
		return err
	}
	listener = netutil.LimitListener(listener, cfg.Proxy.MaxClients)
	log.Info("proxy listening",
		zap.String("addr", cfg.Proxy.ListenAddr),
		zap.Int("max_clients", cfg.Proxy.MaxClients),
		zap.Int("interfaces", len(ids)))

	admin := httpapi.NewServer(cfg.Admin.ListenAddr, registry, aggregator, log)

	var sessions sync.WaitGroup
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return admin.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return listener.Close()
	})
	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				return err
			}
			sessions.Add(1)
			go func() {
				defer sessions.Done()
				handler.Handle(groupCtx, conn)
			}()
		}
	})

	err = group.Wait()
	drainSessions(&sessions, log)
	return err
}

// egressInterfaces resolves the egress paths: the configured pin list if
// present, OS discovery otherwise. No usable interface is fatal; one is
// legal but defeats the point, so it is called out.
func egressInterfaces(cfg config.AppConfig, log *zap.Logger) ([]intf.Identity, error) {
	ids, err := cfg.ParseInterfaces()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids, err = intf.Discover()
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no usable egress interfaces")
	}
	if len(ids) == 1 {
		log.Warn("only one egress interface available, nothing to balance across",
			zap.String("interface", ids[0].Name))
	}
	return ids, nil
}

// drainSessions waits for in-flight sessions to finish, bounded so a
// stuck session cannot hold up process exit.
func drainSessions(sessions *sync.WaitGroup, log *zap.Logger) {
	done := make(chan struct{})
	go func() {
		sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		log.Warn("shutdown drain timed out, abandoning remaining sessions")
	}
}
