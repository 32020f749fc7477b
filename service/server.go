// Package service assembles the script-evaluation operation processor
// (internal/query) with its transport, scripting, and graph-management
// collaborators into a runnable server, the way the teacher's
// BaseService/ComponentManager composed protocol-layer components around
// a shared NATS connection and metrics registry.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/traversalproc/config"
	"github.com/c360/traversalproc/errors"
	"github.com/c360/traversalproc/graphmgr"
	"github.com/c360/traversalproc/health"
	"github.com/c360/traversalproc/internal/query"
	"github.com/c360/traversalproc/metric"
	"github.com/c360/traversalproc/natsclient"
	"github.com/c360/traversalproc/pkg/worker"
	"github.com/c360/traversalproc/scripting/remote"
	"github.com/c360/traversalproc/scripting/yaegi"
	"github.com/c360/traversalproc/transport/codec"
)

const component = "service.Server"

// Status mirrors the teacher's service.Status lifecycle enum.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// requestWork is one decoded request bound to the Channel it arrived on,
// submitted to the worker pool so evaluation and streaming run on a
// script-executor worker rather than the I/O goroutine that decoded it
// (spec §5's role-class separation).
type requestWork struct {
	ctx context.Context
	ch  query.Channel
	msg query.RequestMessage
}

// Server wires the Dispatcher (and everything it depends on) to the
// transports configured in cfg.Transport, and owns their lifecycle.
type Server struct {
	cfg    *config.SafeConfig
	logger *slog.Logger

	nats          *natsclient.Client
	metrics       *metric.MetricsRegistry
	metricsServer *metric.Server
	health        *health.Monitor
	graphs        *graphmgr.Manager
	engine        query.Engine
	dispatcher    *query.Dispatcher
	pool          *worker.Pool[requestWork]

	httpServer *http.Server
	upgrader   websocket.Upgrader

	status    atomic.Int32
	startTime time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// New builds a Server from cfg but does not start anything. rawCfg is read
// once here; later hot-reloaded values (see config.Manager) take effect on
// the next request via Settings built fresh per-dispatch.
func New(cfg *config.SafeConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw := cfg.Get()

	metrics := metric.NewMetricsRegistry()

	nats, err := natsclient.NewClient(firstOrEmpty(raw.NATS.URLs),
		natsclient.WithMaxReconnects(raw.NATS.MaxReconnects),
		natsclient.WithReconnectWait(raw.NATS.ReconnectWait),
		natsclient.WithCredentials(raw.NATS.Username, raw.NATS.Password),
		natsclient.WithToken(raw.NATS.Token),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, errors.WrapFatal(err, component, "New", "construct NATS client")
	}

	engine, err := buildEngine(raw, nats, logger)
	if err != nil {
		return nil, err
	}

	graphs := graphmgr.New(256)

	hook, err := query.NewMetricsHook(metrics)
	if err != nil {
		return nil, errors.WrapFatal(err, component, "New", "register metrics hook")
	}

	tx := query.NewTransactionCoordinator(graphs, raw.Processor.StrictTransactionManagement)
	managed := true
	frames := query.NewFrameBuilder(codec.NewSerializer(), logger)
	streamer := query.NewStreamer(tx, managed, frames, logger)
	evaluator := query.NewEvaluator(engine, streamer, tx, managed, hook, logger)

	limit := rate.Limit(raw.Processor.RateLimitPerSecond)
	dispatcher := query.NewDispatcher(evaluator, limit, raw.Processor.RateLimitBurst, logger)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		nats:       nats,
		metrics:    metrics,
		health:     health.NewMonitor(),
		graphs:     graphs,
		engine:     engine,
		dispatcher: dispatcher,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		stopChan:   make(chan struct{}),
	}
	s.health.UpdateDegraded("nats", "not yet connected")
	s.health.UpdateHealthy("scripting_engine", fmt.Sprintf("backend=%s", raw.Scripting.Backend))

	workers := raw.Processor.RateLimitBurst
	if workers <= 0 {
		workers = 16
	}
	s.pool = worker.NewPool(workers, workers*4, s.runDispatch,
		worker.WithMetricsRegistry[requestWork](metrics, "query_worker"))

	s.metricsServer = metric.NewServer(9090, "/metrics", metrics, raw.Security)

	return s, nil
}

func buildEngine(raw *config.Config, nats *natsclient.Client, logger *slog.Logger) (query.Engine, error) {
	switch raw.Scripting.Backend {
	case "remote":
		timeout := raw.Scripting.RemoteTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return remote.New(nats, raw.Scripting.RemoteSubject, timeout), nil
	case "yaegi", "":
		opts := []yaegi.Option{}
		if len(raw.Scripting.AllowedPackages) > 0 {
			opts = append(opts, yaegi.WithAllowedPackages(raw.Scripting.AllowedPackages...))
		}
		return yaegi.New(logger, opts...), nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown scripting backend %q", raw.Scripting.Backend),
			component, "buildEngine", "select scripting engine")
	}
}

// Start brings up the worker pool, the metrics endpoint, and whichever
// transports cfg.Transport enables, then blocks until ctx is cancelled or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.status.Store(int32(StatusStarting))
	s.startTime = time.Now()

	if err := s.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, component, "Start", "start worker pool")
	}

	if err := s.nats.Connect(ctx); err != nil {
		s.logger.Warn("NATS connection failed at startup, will keep retrying in the background", "error", err)
		s.health.UpdateUnhealthy("nats", err.Error())
	} else {
		s.health.UpdateHealthy("nats", "connected")
	}

	g, gctx := errgroup.WithContext(ctx)

	raw := s.cfg.Get()

	if s.metricsServer != nil {
		g.Go(func() error {
			if err := s.metricsServer.Start(); err != nil {
				return errors.WrapFatal(err, component, "Start", "start metrics server")
			}
			return nil
		})
	}

	if raw.Transport.NATS.Enabled {
		g.Go(func() error { return s.serveNATS(gctx, raw) })
	}

	if raw.Transport.WebSocket.Enabled {
		g.Go(func() error { return s.serveWebSocket(gctx, raw) })
	}

	s.status.Store(int32(StatusRunning))

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.stopChan:
		}
		return nil
	})

	err := g.Wait()
	s.status.Store(int32(StatusStopped))
	return err
}

// Stop signals every transport goroutine started by Start to exit and
// waits up to timeout for the worker pool to drain in-flight requests.
func (s *Server) Stop(timeout time.Duration) error {
	s.status.Store(int32(StatusStopping))
	s.stopOnce.Do(func() { close(s.stopChan) })

	if s.metricsServer != nil {
		_ = s.metricsServer.Stop()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
	if err := s.pool.Stop(timeout); err != nil {
		s.logger.Warn("worker pool did not drain within timeout", "error", err)
	}
	return s.nats.Close(context.Background())
}

// Status reports the server's current lifecycle state.
func (s *Server) Status() Status { return Status(s.status.Load()) }

// Health aggregates the per-component health.Status tracked for nats,
// the scripting engine, and any dependency that reports into s.health.
func (s *Server) Health() health.Status {
	return s.health.AggregateHealth(component)
}

// runDispatch is the worker-pool processor func: it runs the Dispatcher
// for one decoded request on a pooled goroutine, standing in for the
// "script-executor worker" role class of spec §5.
func (s *Server) runDispatch(_ context.Context, work requestWork) error {
	settings := s.settingsFor(work.msg)
	_ = s.dispatcher.Dispatch(work.ctx, work.ch, work.msg, settings, s.graphs)
	return nil
}

func (s *Server) settingsFor(msg query.RequestMessage) query.Settings {
	raw := s.cfg.Get()
	settings := query.DefaultSettings()
	if raw.Processor.ResultIterationBatchSize > 0 {
		settings.ResultIterationBatchSize = raw.Processor.ResultIterationBatchSize
	}
	if raw.Processor.SerializedResponseTimeout > 0 {
		settings.SerializedResponseTimeout = raw.Processor.SerializedResponseTimeout
	}
	if raw.Processor.EvaluationTimeout > 0 {
		settings.EvaluationTimeout = raw.Processor.EvaluationTimeout
	}
	settings.StrictTransactionManagement = raw.Processor.StrictTransactionManagement
	return settings
}

const defaultNATSURL = "nats://127.0.0.1:4222"

func firstOrEmpty(urls []string) string {
	if len(urls) == 0 {
		return defaultNATSURL
	}
	return urls[0]
}
