package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/phrazzld/tracecore/internal/api"
	"github.com/phrazzld/tracecore/internal/config"
	"github.com/phrazzld/tracecore/internal/events"
	"github.com/phrazzld/tracecore/internal/exporter"
	"github.com/phrazzld/tracecore/internal/gate"
	"github.com/phrazzld/tracecore/internal/task"
)

// Event names dispatched on the agent's hub.
const (
	EventHeartbeat    = "tracer.heartbeat"
	EventSpanFinished = "span.finished"
	EventFlushed      = "tracer.flush"
)

// maxBufferedSpans triggers an early flush once this many spans are waiting.
const maxBufferedSpans = 1000

// application holds the agent's components and owns their lifecycle.
type application struct {
	config *config.Config
	logger *slog.Logger

	hub       *events.Hub
	scheduler *task.Scheduler
	exporter  *exporter.Exporter
	buffer    *spanBuffer

	heartbeat *task.PeriodicService
	flush     *task.AwakeablePeriodicService

	server     *http.Server
	router     http.Handler
	stopSignal func()

	started time.Time
	nextID  atomic.Uint64
}

// newApplication wires the hub, scheduler, exporter and status surface from cfg.
// Nothing runs until start is called.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:     cfg,
		logger:     logger,
		buffer:     &spanBuffer{},
		started:    time.Now(),
		stopSignal: func() {},
	}

	g := gate.Process()
	app.hub = events.NewHub(logger,
		events.WithGate(g),
		events.WithRaiseOnError(cfg.Events.RaiseOnError))

	schedulerOpts := []task.SchedulerOption{
		task.WithGate(g),
		task.WithTick(cfg.Scheduler.Tick),
	}
	if cfg.Scheduler.HandleSignals {
		check, stop := task.SignalInterrupt(syscall.SIGINT, syscall.SIGTERM)
		schedulerOpts = append(schedulerOpts, task.WithInterruptCheck(check))
		app.stopSignal = stop
	}
	app.scheduler = task.NewScheduler(logger, schedulerOpts...)

	if cfg.Exporter.IntakeURL != "" {
		exp, err := exporter.New(cfg.Exporter.IntakeURL, exporter.Metadata{
			Language:        "go",
			LanguageVersion: strings.TrimPrefix(runtime.Version(), "go"),
			Interpreter:     runtime.Compiler,
			TracerVersion:   cfg.Exporter.TracerVersion,
		},
			exporter.WithHTTPClient(&http.Client{Timeout: cfg.Exporter.Timeout}),
			exporter.WithLogger(logger))
		if err != nil {
			app.stopSignal()
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		app.exporter = exp
	}

	app.heartbeat = task.NewPeriodicService(app.scheduler, "heartbeat",
		cfg.Scheduler.HeartbeatInterval, app.beat)
	app.flush = task.NewAwakeablePeriodicService(app.scheduler, "flush",
		cfg.Scheduler.FlushInterval, app.flushSpans,
		task.WithShutdownHook(app.flushSpans))

	app.registerListeners()

	app.router = api.NewRouter(api.NewStatusHandler(app.scheduler, app.hub, logger), logger)
	if cfg.Status.Enabled {
		app.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
			Handler:           app.router,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

func (app *application) registerListeners() {
	app.hub.OnAll(events.ListenerFunc(func(ctx context.Context, args ...any) error {
		payload, _ := args[1].([]any)
		app.logger.Debug("event dispatched", "event", args[0], "arg_count", len(payload))
		return nil
	}))

	app.hub.On(EventHeartbeat, events.ListenerFunc(func(ctx context.Context, args ...any) error {
		uptime, _ := args[0].(time.Duration)
		now := time.Now()
		return app.hub.Dispatch(ctx, EventSpanFinished, Span{
			TraceID:  app.nextID.Add(1),
			SpanID:   app.nextID.Add(1),
			Name:     "agent.heartbeat",
			Resource: EventHeartbeat,
			Service:  "tracecore-agent",
			Start:    now.UnixNano(),
			Meta:     map[string]string{"uptime": uptime.String()},
		})
	}))

	app.hub.On(EventSpanFinished, events.ListenerFunc(func(ctx context.Context, args ...any) error {
		span, ok := args[0].(Span)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", EventSpanFinished, args[0])
		}
		if app.buffer.Add(span) >= maxBufferedSpans {
			app.flush.Awake(ctx)
		}
		return nil
	}))
}

// beat is the heartbeat task body.
func (app *application) beat(ctx context.Context) error {
	return app.hub.Dispatch(ctx, EventHeartbeat, time.Since(app.started))
}

// flushSpans is the flush task body and shutdown hook. It sends every
// buffered span to the exporter, or discards them when none is configured.
func (app *application) flushSpans(ctx context.Context) error {
	spans := app.buffer.Drain()
	if len(spans) == 0 {
		return nil
	}

	if app.exporter == nil {
		app.logger.Debug("discarding spans, no exporter configured", "span_count", len(spans))
		return app.hub.Dispatch(ctx, EventFlushed, len(spans), nil)
	}

	payload, traceCount, err := encodeTraces(spans)
	if err == nil {
		_, err = app.exporter.Send(ctx, payload, traceCount)
	}
	if dispatchErr := app.hub.Dispatch(ctx, EventFlushed, len(spans), err); dispatchErr != nil {
		err = errors.Join(err, dispatchErr)
	}
	if err != nil {
		return fmt.Errorf("failed to flush %d spans: %w", len(spans), err)
	}
	return nil
}

// start registers the periodic services, starts the scheduler and the status
// server. Server failures are reported on the returned channel.
func (app *application) start() <-chan error {
	errCh := make(chan error, 1)

	app.heartbeat.Start()
	app.flush.Start()
	app.scheduler.Start()

	if app.server != nil {
		go func() {
			app.logger.Info("starting status server", "addr", app.server.Addr)
			if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("status server failed: %w", err)
			}
		}()
	}

	return errCh
}

// shutdown stops the status server and the scheduler. The scheduler's
// shutdown hooks, including the final flush, run with ctx.
func (app *application) shutdown(ctx context.Context) error {
	defer app.stopSignal()

	var err error
	if app.server != nil {
		if shutdownErr := app.server.Shutdown(ctx); shutdownErr != nil {
			app.logger.Error("status server shutdown failed", "error", shutdownErr)
			err = fmt.Errorf("status server shutdown failed: %w", shutdownErr)
		}
	}

	app.scheduler.Stop(ctx)
	app.logger.Info("agent shutdown completed")
	return err
}
