package launcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

const (
	dbusInterface        = "org.freedesktop.DBus"
	nameOwnerChanged     = "NameOwnerChanged"
	applicationInterface = "org.freedesktop.Application"
)

// BusConn is the subset of the session bus connection the bus-activation
// backend needs. *dbus.Conn implements it; tests substitute a stub.
type BusConn interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	BusObject() dbus.BusObject
}

// BusRuntime is the runtime handle for a bus-activated application: the
// NameOwnerChanged watch plus the cached activation proxy. All fields are
// set once during start and read-only afterwards, so a re-activation that
// copied the handle out of the record can keep using it without a lock,
// even while a concurrent termination releases it.
type BusRuntime struct {
	backend *BusBackend
	appID   string
	proxy   dbus.BusObject
}

// Release implements catalog.Runtime. Removing the name watch is the whole
// teardown; the handle itself is never mutated.
func (r *BusRuntime) Release() {
	r.backend.unwatch(r.appID)
}

// BusBackend starts applications through D-Bus name activation. Watching
// the well-known name is the activation request: the backend subscribes to
// ownership changes for the name, asks the bus to start the service and
// treats the name appearing as proof the application is running.
type BusBackend struct {
	launcher *Launcher
	conn     BusConn
	log      *logging.Logger

	mu      sync.Mutex
	watched map[string]struct{}

	signals chan *dbus.Signal
}

// NewBusBackend attaches a bus-activation backend to the launcher.
func NewBusBackend(l *Launcher, conn BusConn, log *logging.Logger) *BusBackend {
	b := &BusBackend{
		launcher: l,
		conn:     conn,
		log:      log,
		watched:  make(map[string]struct{}),
		signals:  make(chan *dbus.Signal, 32),
	}
	conn.Signal(b.signals)
	go b.loop()

	l.register(catalog.ActivationBus, b)
	return b
}

// Close detaches the backend from the bus signal stream.
func (b *BusBackend) Close() error {
	b.conn.RemoveSignal(b.signals)
	close(b.signals)
	return nil
}

func (b *BusBackend) start(_ context.Context, rec *catalog.Record) (bool, error) {
	if err := b.conn.AddMatchSignal(nameWatchOptions(rec.ID)...); err != nil {
		return false, fmt.Errorf("watching bus name %q: %w", rec.ID, err)
	}

	b.mu.Lock()
	b.watched[rec.ID] = struct{}{}
	b.mu.Unlock()

	rec.Runtime = &BusRuntime{
		backend: b,
		appID:   rec.ID,
		proxy:   b.conn.Object(rec.ID, objectPath(rec.ID)),
	}
	rec.Status = catalog.StatusStarting

	b.log.Debug("requesting bus activation", zap.String("app_id", rec.ID))

	// The owner probe and activation request are bus round-trips, keep
	// them off the transition lock. Their outcome arrives through the
	// NameOwnerChanged watch either way.
	go b.requestActivation(rec.ID)

	return false, nil
}

// activate repeats the Activate call for an application that is already
// running, so it can raise its window. The status is left untouched and no
// started event is re-emitted.
func (b *BusBackend) activate(id string, rt catalog.Runtime) {
	brt, ok := rt.(*BusRuntime)
	if !ok || brt == nil {
		return
	}
	b.callActivate(id, brt.proxy)
}

// requestActivation asks the bus to start the service backing the name. If
// the name already has an owner the application is running and the
// transition completes right away.
func (b *BusBackend) requestActivation(name string) {
	var owner string
	err := b.conn.BusObject().Call(dbusInterface+".GetNameOwner", 0, name).Store(&owner)
	if err == nil && owner != "" {
		b.nameAppeared(name)
		return
	}

	call := b.conn.BusObject().Call(dbusInterface+".StartServiceByName", 0, name, uint32(0))
	if call.Err != nil {
		// Not fatal: some services only register their name on their own
		// schedule, the watch keeps waiting for it.
		b.log.Warn("bus activation request failed",
			zap.String("app_id", name),
			zap.Error(call.Err),
		)
	}
}

func (b *BusBackend) loop() {
	for sig := range b.signals {
		b.dispatch(sig)
	}
}

func (b *BusBackend) dispatch(sig *dbus.Signal) {
	if sig == nil || sig.Name != dbusInterface+"."+nameOwnerChanged {
		return
	}
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)

	b.mu.Lock()
	_, ok := b.watched[name]
	b.mu.Unlock()
	if !ok {
		return
	}

	if newOwner != "" {
		b.nameAppeared(name)
	} else {
		b.nameVanished(name)
	}
}

// nameAppeared completes the start: the application registered its name,
// so it is running. The optional Activate call raises its window; a
// failure there is logged and swallowed since the name alone is sufficient
// proof of success, and started is emitted regardless.
func (b *BusBackend) nameAppeared(name string) {
	b.launcher.started(name, func(rt catalog.Runtime) {
		if brt, ok := rt.(*BusRuntime); ok && brt != nil {
			b.callActivate(name, brt.proxy)
		}
	})
}

// nameVanished reports the termination of a bus-activated application.
func (b *BusBackend) nameVanished(name string) {
	b.log.Debug("application vanished from bus", zap.String("app_id", name))
	b.launcher.terminated(name)
}

func (b *BusBackend) callActivate(id string, proxy dbus.BusObject) {
	if proxy == nil {
		return
	}
	call := proxy.Call(applicationInterface+".Activate", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		// Headless applications commonly do not implement
		// org.freedesktop.Application.
		b.log.Warn("error activating application",
			zap.String("app_id", id),
			zap.Error(call.Err),
		)
	}
}

// unwatch drops the name watch. Called exactly once per runtime handle,
// from Release.
func (b *BusBackend) unwatch(name string) {
	b.mu.Lock()
	delete(b.watched, name)
	b.mu.Unlock()

	if err := b.conn.RemoveMatchSignal(nameWatchOptions(name)...); err != nil {
		b.log.Warn("failed to remove bus name match",
			zap.String("app_id", name),
			zap.Error(err),
		)
	}
}

func nameWatchOptions(name string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(nameOwnerChanged),
		dbus.WithMatchArg(0, name),
	}
}

// objectPath derives the activation object path from a well-known name:
// the base path for "org.example.Iface" is "/org/example/Iface".
func objectPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath("/" + strings.ReplaceAll(name, ".", "/"))
}
