// Command mujina is the mining daemon: it hotplugs boards, dials the
// configured pool, schedules hash work across every attached thread, and
// serves the /v0 HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mujina-miner/mujina/internal/api"
	"github.com/mujina-miner/mujina/internal/board"
	_ "github.com/mujina-miner/mujina/internal/board/bitaxe"
	_ "github.com/mujina-miner/mujina/internal/board/virtual"
	"github.com/mujina-miner/mujina/internal/config"
	"github.com/mujina-miner/mujina/internal/scheduler"
	"github.com/mujina-miner/mujina/internal/stratum"
)

func main() {
	log := logrus.NewEntry(logrus.New())

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(log.WithField("component", "scheduler"))
	go sched.Run(ctx)

	registry := api.NewRegistry()

	board.Global().Seal()

	watcher := board.NewTransportWatcher(time.Second, 16, log.WithField("component", "usb"))
	go watcher.Run(ctx)
	go watchTransport(ctx, watcher, sched, registry, log)

	startVirtualBoard(ctx, sched, registry, log)

	poolCfg := stratum.PoolConfig{
		URL:                   cfg.Pool.URL,
		Username:              cfg.Pool.Username,
		Password:              cfg.Pool.Password,
		UserAgent:             cfg.Pool.UserAgent,
		RequestVersionRolling: true,
	}
	source, handle := stratum.NewSource(poolCfg, sched, log.WithField("component", "stratum"))
	registry.AddSource(handle.Name(), source)
	go source.Run(ctx)

	server := api.NewServer(sched, registry, log.WithField("component", "api"))
	addr, err := config.ParseAddr(cfg.APIAddr)
	if err != nil {
		log.WithError(err).Fatal("invalid API listen address")
	}
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	go func() {
		log.WithField("addr", addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API server shutdown error")
	}
}

// watchTransport hotplugs physical boards as USB devices connect, matching
// them against the sealed board registry and registering their threads with
// the scheduler and the API's registry.
func watchTransport(ctx context.Context, w *board.TransportWatcher, sched *scheduler.Scheduler, registry *api.Registry, log *logrus.Entry) {
	boards := make(map[string]*board.Board)

	for ev := range w.Events() {
		switch ev.Kind {
		case board.UsbDeviceConnected:
			desc, ok := board.Global().Match(ev.Info)
			if !ok {
				continue
			}
			b, reg, err := desc.Factory(ctx, ev.Info)
			if err != nil {
				log.WithError(err).WithField("descriptor", desc.Name).Warn("failed to open board")
				continue
			}
			boards[ev.Info.Path] = b

			initial := <-reg.StateRx
			registry.AddBoard(b, initial)
			for _, ht := range b.Threads() {
				sched.SubmitThread(ctx, ht)
			}
			go watchBoardState(ctx, b, reg, registry)

		case board.UsbDeviceDisconnected:
			b, ok := boards[ev.Info.Path]
			if !ok {
				continue
			}
			delete(boards, ev.Info.Path)
			registry.RemoveBoard(b.Name())
			b.Shutdown(ctx)
		}
	}
}

// watchBoardState forwards a board's state snapshots into the API registry
// until its watch channel closes.
func watchBoardState(ctx context.Context, b *board.Board, reg *board.BoardRegistration, registry *api.Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-reg.StateRx:
			if !ok {
				return
			}
			registry.UpdateBoardState(b.Name(), state)
		}
	}
}

// startVirtualBoard opens the always-available CPU miner board so the
// daemon has something to dispatch work to even with no USB hardware
// attached.
func startVirtualBoard(ctx context.Context, sched *scheduler.Scheduler, registry *api.Registry, log *logrus.Entry) {
	desc, ok := board.Global().MatchVirtual("cpu")
	if !ok {
		return
	}
	b, reg, err := desc.Factory(ctx, desc.Tag)
	if err != nil {
		log.WithError(err).Warn("failed to start virtual CPU board")
		return
	}

	initial := <-reg.StateRx
	registry.AddBoard(b, initial)
	for _, ht := range b.Threads() {
		sched.SubmitThread(ctx, ht)
	}
	go watchBoardState(ctx, b, reg, registry)
}
