// Command mdfeed runs the market-data feed handler: it joins a live
// and a replay/snapshot stream, reconstructs a per-symbol order book,
// and emits top-of-book records. The single-threaded cooperative
// event loop, flag parsing, and signal-driven shutdown follow
// cmd/luxd's LXDNode New/Start/Shutdown lifecycle and its
// signal.Notify on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/mdfeed/internal/book"
	"github.com/luxfi/mdfeed/internal/feed"
	"github.com/luxfi/mdfeed/internal/metrics"
	"github.com/luxfi/mdfeed/internal/sequence"
	"github.com/luxfi/mdfeed/internal/sink"
	"github.com/luxfi/mdfeed/internal/syncctl"
	"github.com/luxfi/mdfeed/internal/wsbbo"
)

// maxBatchPerWakeup bounds how many ready datagrams are processed
// before yielding back to the readiness wait.
const maxBatchPerWakeup = 16

// drainPollTimeout is the effectively-non-blocking timeout used to
// check for additional ready datagrams after the first in a wakeup,
// so a busy channel cannot be starved by always re-blocking for the
// full catch-up poll interval.
const drainPollTimeout = 50 * time.Microsecond

type config struct {
	transport string // "zmq", "nats", "memory"

	zmqLiveAddr   string
	zmqReplayAddr string

	natsURL        string
	natsLiveSubj   string
	natsReplaySubj string
	natsQueueGroup string

	outPath     string
	metricsAddr string
	wsAddr      string
	logLevel    string
}

func main() {
	cfg := parseFlags()

	level, _ := log.ToLevel(cfg.logLevel)
	logger := log.NewTestLogger(level).WithField("module", "mdfeed")

	if err := run(cfg, logger); err != nil {
		logger.Fatal("mdfeed exited with error", "error", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.transport, "transport", "zmq", "transport: zmq, nats, or memory")
	flag.StringVar(&cfg.zmqLiveAddr, "zmq-live-addr", "tcp://*:5570", "ZMQ PULL bind address for the live channel")
	flag.StringVar(&cfg.zmqReplayAddr, "zmq-replay-addr", "tcp://*:5571", "ZMQ PULL bind address for the replay channel")
	flag.StringVar(&cfg.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flag.StringVar(&cfg.natsLiveSubj, "nats-live-subject", "mdfeed.live", "NATS subject for the live channel")
	flag.StringVar(&cfg.natsReplaySubj, "nats-replay-subject", "mdfeed.replay", "NATS subject for the replay channel")
	flag.StringVar(&cfg.natsQueueGroup, "nats-queue-group", "mdfeed", "NATS queue group for load-balanced delivery")
	flag.StringVar(&cfg.outPath, "out", "-", "BBO CSV output path (- for stdout)")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", ":9090", "Prometheus /metrics listen address")
	flag.StringVar(&cfg.wsAddr, "ws-addr", ":8081", "BBO WebSocket (/ws/bbo) listen address")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()
	return cfg
}

func run(cfg config, logger log.Logger) error {
	out, closeOut, err := openOutput(cfg.outPath)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer closeOut()

	liveCh, replayCh, closeChannels, err := openChannels(cfg)
	if err != nil {
		return fmt.Errorf("open channels: %w", err)
	}
	defer closeChannels()

	reg := metrics.New("mdfeed", logger.WithField("module", "metrics"))
	ws := wsbbo.New(logger.WithField("module", "wsbbo"))

	bboSink := sink.New(out)
	bboSink.SetForward(ws.Publish)

	ctrl := syncctl.New(bboSink)
	ctrl.SetLogger(logger.WithField("module", "syncctl"))
	ctrl.SetMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws.Run(ctx.Done())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.CollectRuntimeStats(ctx, 10*time.Second)
	}()

	// Serve has no shutdown hook, so it is left out of wg: waiting on
	// it would block shutdown forever.
	go func() {
		if err := reg.Serve(cfg.metricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serveWebSocket(ctx, cfg.wsAddr, ws, logger); err != nil {
			logger.Error("websocket server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mdfeed starting", "transport", cfg.transport, "cpus", runtime.NumCPU())

	loopErr := make(chan error, 1)
	go func() { loopErr <- eventLoop(ctx, ctrl, liveCh, replayCh, logger) }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-loopErr:
		cancel()
		if err != nil {
			logger.Error("protocol-fatal error, terminating", "diagnostic", fatalDiagnostic(err))
			flushErr := bboSink.Flush()
			wg.Wait()
			if flushErr != nil {
				logger.Error("final sink flush failed", "error", flushErr)
			}
			return err
		}
	}

	wg.Wait()
	return bboSink.Flush()
}

// eventLoop is the single-threaded cooperative loop: one execution
// context waits on readiness of the two input channels and processes
// at most maxBatchPerWakeup ready datagrams per wakeup, never blocking
// inside a book mutation or sink write.
func eventLoop(ctx context.Context, ctrl *syncctl.Controller, liveCh, replayCh feed.Channel, logger log.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := drainWakeup(ctrl, liveCh, replayCh)
		if err != nil {
			return err
		}
		if processed == 0 {
			if err := ctrl.NotifyIdlePoll(); err != nil {
				return err
			}
		}
	}
}

// drainWakeup processes up to maxBatchPerWakeup ready datagrams from
// either channel, blocking for the controller's current poll timeout
// only on the first attempt of the wakeup; subsequent attempts use a
// effectively-non-blocking timeout so a busy source cannot starve the
// loop's return to the outer readiness wait.
func drainWakeup(ctrl *syncctl.Controller, liveCh, replayCh feed.Channel) (int, error) {
	processed := 0
	timeout := ctrl.PollTimeout()
	liveOnly := ctrl.State() == syncctl.StateLive

	for i := 0; i < maxBatchPerWakeup; i++ {
		if i > 0 {
			timeout = drainPollTimeout
		}

		dgram, ok, err := liveCh.Recv(timeout)
		if err != nil {
			return processed, err
		}
		if ok {
			if err := ctrl.IngestLive(dgram.Payload); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if liveOnly {
			break
		}

		dgram, ok, err = replayCh.Recv(drainPollTimeout)
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
		if err := ctrl.IngestReplay(dgram.Payload); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

func openOutput(path string) (out *os.File, closeFn func() error, err error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openChannels(cfg config) (live, replay feed.Channel, closeFn func(), err error) {
	switch cfg.transport {
	case "zmq":
		liveZMQ, err := feed.NewZMQChannel(feed.Live, cfg.zmqLiveAddr, 100_000, 8*1024*1024)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("live zmq channel: %w", err)
		}
		replayZMQ, err := feed.NewZMQChannel(feed.Replay, cfg.zmqReplayAddr, 100_000, 8*1024*1024)
		if err != nil {
			liveZMQ.Close()
			return nil, nil, nil, fmt.Errorf("replay zmq channel: %w", err)
		}
		return liveZMQ, replayZMQ, func() { liveZMQ.Close(); replayZMQ.Close() }, nil

	case "nats":
		liveNATS, err := feed.NewNATSChannel(feed.Live, cfg.natsURL, cfg.natsLiveSubj, cfg.natsQueueGroup, 4096)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("live nats channel: %w", err)
		}
		replayNATS, err := feed.NewNATSChannel(feed.Replay, cfg.natsURL, cfg.natsReplaySubj, cfg.natsQueueGroup, 4096)
		if err != nil {
			liveNATS.Close()
			return nil, nil, nil, fmt.Errorf("replay nats channel: %w", err)
		}
		return liveNATS, replayNATS, func() { liveNATS.Close(); replayNATS.Close() }, nil

	case "memory":
		liveMem := feed.NewMemoryChannel(feed.Live)
		replayMem := feed.NewMemoryChannel(feed.Replay)
		return liveMem, replayMem, func() { liveMem.Close(); replayMem.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown transport %q", cfg.transport)
	}
}

func serveWebSocket(ctx context.Context, addr string, ws *wsbbo.Server, logger log.Logger) error {
	mux := newMux(ws)
	srv := newHTTPServer(addr, mux)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("websocket server listening", "addr", addr, "path", "/ws/bbo")
	return srv.ListenAndServe()
}

// fatalDiagnostic formats a diagnostic line for a protocol-fatal
// error, distinguishing the two concrete fatal types this engine can
// surface from the book and sequence packages so the top-level loop's
// log line always names expected/received or the invariant that
// broke.
func fatalDiagnostic(err error) string {
	switch e := err.(type) {
	case *sequence.GapError:
		return fmt.Sprintf("live sequence gap: symbol=%d expected=%d received=%d", e.Symbol, e.Expected, e.Received)
	case *book.FatalError:
		return fmt.Sprintf("book invariant violation: %s", e.Error())
	default:
		return err.Error()
	}
}
