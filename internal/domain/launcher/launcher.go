package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
	"github.com/denix0/applaunchd/internal/infrastructure/monitoring"
)

var (
	// ErrSpawnFailed is returned when the process backend cannot create
	// the child process.
	ErrSpawnFailed = errors.New("failed to spawn application process")

	// ErrUnitStartFailed is returned when the systemd StartUnit call for
	// an application is rejected.
	ErrUnitStartFailed = errors.New("failed to start application unit")
)

// backend starts one application and reports its lifecycle back to the
// launcher. start is invoked with the launcher lock held and the record
// Inactive; it either returns an error leaving the record untouched, or
// attaches a runtime handle and sets the new status. The returned flag
// requests an immediate started event for backends that have no readiness
// notification of their own.
type backend interface {
	start(ctx context.Context, rec *catalog.Record) (started bool, err error)
}

// activator is implemented by backends that can bring an already running
// application to the foreground on a repeated start request.
type activator interface {
	activate(id string, rt catalog.Runtime)
}

// Launcher owns the application catalog and drives each record's lifecycle
// state machine. It selects the backend matching the record's activation
// kind, guarantees at most one in-flight start per application and is the
// single place that publishes started/terminated events to subscribers.
//
// Every state transition happens under one mutex, so backend callbacks
// arriving from watch goroutines are serialized with control-plane
// requests and no record is ever observed mid-transition.
type Launcher struct {
	mu       sync.Mutex
	catalog  *catalog.Catalog
	backends map[catalog.Activation]backend
	broker   *broker
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a launcher for the given catalog. The process backend is
// always available; bus and unit backends are attached separately since
// they need live bus connections.
func New(cat *catalog.Catalog, log *logging.Logger) *Launcher {
	l := &Launcher{
		catalog:  cat,
		backends: make(map[catalog.Activation]backend),
		broker:   newBroker(),
		log:      log,
	}
	l.backends[catalog.ActivationProcess] = newProcessBackend(l, log)
	return l
}

// WithMetrics adds metrics tracking to the launcher.
func (l *Launcher) WithMetrics(m *monitoring.Metrics) *Launcher {
	l.metrics = m
	return l
}

// register attaches a backend for an activation kind.
func (l *Launcher) register(kind catalog.Activation, b backend) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backends[kind] = b
}

// Start requests the application with the given id to start.
//
// A request for an application already Starting is a no-op success. A
// request for a Running application is forwarded to the backend as a
// bring-to-foreground request without touching its status. Errors are
// catalog.ErrNotFound, ErrSpawnFailed or ErrUnitStartFailed; in every
// failure case the record is left Inactive so a retry is possible.
func (l *Launcher) Start(ctx context.Context, id string) error {
	rec, err := l.catalog.Lookup(id)
	if err != nil {
		return err
	}

	l.mu.Lock()

	switch rec.Status {
	case catalog.StatusStarting:
		l.mu.Unlock()
		l.log.Debug("application already starting", zap.String("app_id", id))
		return nil

	case catalog.StatusRunning:
		b := l.backends[rec.Activation]
		rt := rec.Runtime
		l.mu.Unlock()
		l.log.Debug("application already running", zap.String("app_id", id))
		if a, ok := b.(activator); ok {
			a.activate(id, rt)
		}
		return nil
	}

	b, ok := l.backends[rec.Activation]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("no %s backend available for %q", rec.Activation, id)
	}

	started, err := b.start(ctx, rec)
	if err != nil {
		l.mu.Unlock()
		l.recordLaunch(rec.Activation, "error")
		l.log.Error("failed to start application", zap.String("app_id", id), zap.Error(err))
		return err
	}
	if started {
		l.emitStarted(id)
	}
	l.mu.Unlock()

	l.recordLaunch(rec.Activation, "ok")
	return nil
}

// Status returns the current lifecycle status of an application.
func (l *Launcher) Status(id string) (catalog.Status, error) {
	rec, err := l.catalog.Lookup(id)
	if err != nil {
		return catalog.StatusInactive, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return rec.Status, nil
}

// Subscribe registers a lifecycle event listener. The returned channel
// receives events published after this call; there is no replay.
func (l *Launcher) Subscribe() (string, <-chan Event) {
	return l.broker.subscribe()
}

// Unsubscribe removes a listener and closes its channel.
func (l *Launcher) Unsubscribe(id string) {
	l.broker.unsubscribe(id)
}

// Close shuts down subscriber channels and backend watch loops.
func (l *Launcher) Close() {
	l.broker.close()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.backends {
		if c, ok := b.(io.Closer); ok {
			c.Close()
		}
	}
}

// started handles a backend readiness notification: it moves the record
// from Starting to Running and publishes the started event. Duplicate
// notifications while already Running are collapsed to nothing, as is a
// notification for an application that terminated in the meantime.
// prepare, when non-nil, runs between the transition and the emission
// (the bus backend's activation call goes there).
func (l *Launcher) started(id string, prepare func(rt catalog.Runtime)) bool {
	rec, err := l.catalog.Lookup(id)
	if err != nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Status != catalog.StatusStarting {
		return false
	}
	rec.Status = catalog.StatusRunning
	if prepare != nil {
		prepare(rec.Runtime)
	}
	l.emitStarted(id)
	return true
}

// terminated handles a backend termination notification: it resets the
// record to Inactive, releases the runtime handle exactly once and
// publishes the terminated event. A duplicate notification finds the
// record already Inactive and does nothing.
func (l *Launcher) terminated(id string) {
	rec, err := l.catalog.Lookup(id)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Status == catalog.StatusInactive {
		return
	}
	wasRunning := rec.Status == catalog.StatusRunning
	rt := rec.Runtime
	rec.Status = catalog.StatusInactive
	rec.Runtime = nil
	if rt != nil {
		rt.Release()
	}
	l.emitTerminated(id, wasRunning)
}

// runtimeFor returns the current runtime handle of an application.
func (l *Launcher) runtimeFor(id string) catalog.Runtime {
	rec, err := l.catalog.Lookup(id)
	if err != nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return rec.Runtime
}

// emitStarted publishes the started event. Callers hold l.mu, which keeps
// event order consistent with transition order.
func (l *Launcher) emitStarted(id string) {
	l.log.Info("application started", zap.String("app_id", id))
	if l.metrics != nil {
		l.metrics.AppStarted()
		l.metrics.RecordEvent(string(EventStarted))
	}
	l.broker.publish(Event{Kind: EventStarted, AppID: id})
}

// emitTerminated publishes the terminated event. Callers hold l.mu.
func (l *Launcher) emitTerminated(id string, wasRunning bool) {
	l.log.Info("application terminated", zap.String("app_id", id))
	if l.metrics != nil {
		if wasRunning {
			l.metrics.AppTerminated()
		}
		l.metrics.RecordEvent(string(EventTerminated))
	}
	l.broker.publish(Event{Kind: EventTerminated, AppID: id})
}

func (l *Launcher) recordLaunch(kind catalog.Activation, result string) {
	if l.metrics != nil {
		l.metrics.RecordLaunch(kind.String(), result)
	}
}
