package launcher

import (
	"context"
	"fmt"
	"sync"

	sd "github.com/coreos/go-systemd/v22/dbus"
	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

// activeStateProperty is the systemd unit property that tracks the unit
// lifecycle. PropertiesChanged invalidates it instead of carrying the new
// value, so every notification is followed by an explicit query.
const activeStateProperty = "ActiveState"

// SystemdConn is the subset of the systemd D-Bus API the unit backend
// uses. *dbus.Conn from go-systemd implements it; tests substitute a stub.
type SystemdConn interface {
	Subscribe() error
	SetPropertiesSubscriber(updateCh chan<- *sd.PropertiesUpdate, errCh chan<- error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	GetUnitPropertyContext(ctx context.Context, unit string, propertyName string) (*sd.Property, error)
}

// UnitRuntime is the runtime handle for a unit-activated application: the
// per-unit slice of the property-change subscription.
type UnitRuntime struct {
	backend *UnitBackend
	Unit    string
}

// Release implements catalog.Runtime.
func (r *UnitRuntime) Release() {
	r.backend.forget(r.Unit)
}

// UnitBackend starts applications as externally supervised systemd units.
// The unit name is derived from the command line through a fixed template;
// readiness and termination are observed through property-change
// notifications on the unit followed by an out-of-band ActiveState query.
type UnitBackend struct {
	launcher *Launcher
	conn     SystemdConn
	template string
	log      *logging.Logger

	mu    sync.Mutex
	units map[string]string // unit name -> app id

	updates chan *sd.PropertiesUpdate
	errs    chan error
}

// NewUnitBackend attaches a unit-activation backend to the launcher. The
// connection is subscribed to systemd's signal stream once, shared by all
// units; per-unit scoping happens in the units table.
func NewUnitBackend(l *Launcher, conn SystemdConn, template string, log *logging.Logger) (*UnitBackend, error) {
	if err := conn.Subscribe(); err != nil {
		return nil, fmt.Errorf("subscribing to systemd signals: %w", err)
	}

	b := &UnitBackend{
		launcher: l,
		conn:     conn,
		template: template,
		log:      log,
		units:    make(map[string]string),
		updates:  make(chan *sd.PropertiesUpdate, 32),
		errs:     make(chan error, 8),
	}
	conn.SetPropertiesSubscriber(b.updates, b.errs)
	go b.loop()

	l.register(catalog.ActivationUnit, b)
	return b, nil
}

func (b *UnitBackend) start(ctx context.Context, rec *catalog.Record) (bool, error) {
	unit := fmt.Sprintf(b.template, rec.Command)

	// Register interest before the start call so no notification between
	// the ack and the bookkeeping can be missed.
	b.track(unit, rec.ID)

	if _, err := b.conn.StartUnitContext(ctx, unit, "replace", nil); err != nil {
		b.forget(unit)
		return false, fmt.Errorf("%w: %q: %v", ErrUnitStartFailed, rec.ID, err)
	}

	rec.Runtime = &UnitRuntime{backend: b, Unit: unit}
	rec.Status = catalog.StatusStarting

	b.log.Debug("queued unit start",
		zap.String("app_id", rec.ID),
		zap.String("unit", unit),
	)

	return false, nil
}

func (b *UnitBackend) loop() {
	for {
		select {
		case upd, ok := <-b.updates:
			if !ok {
				return
			}
			if upd != nil {
				b.handleUpdate(upd.UnitName)
			}
		case err, ok := <-b.errs:
			if !ok {
				return
			}
			b.log.Warn("systemd subscription error", zap.Error(err))
		}
	}
}

// handleUpdate processes a property-change notification for a unit. The
// notification does not carry the new ActiveState, so the current value is
// queried separately. systemd may deliver the same logical change more
// than once; the launcher transitions collapse duplicates.
func (b *UnitBackend) handleUpdate(unit string) {
	appID, ok := b.appFor(unit)
	if !ok {
		return
	}

	prop, err := b.conn.GetUnitPropertyContext(context.Background(), unit, activeStateProperty)
	if err != nil {
		b.log.Warn("failed to query unit state",
			zap.String("unit", unit),
			zap.Error(err),
		)
		return
	}

	state, _ := prop.Value.Value().(string)
	switch state {
	case "active":
		b.launcher.started(appID, nil)
	case "inactive":
		b.log.Debug("unit became inactive",
			zap.String("app_id", appID),
			zap.String("unit", unit),
		)
		b.launcher.terminated(appID)
	default:
		// Transitional states (activating, deactivating, ...) are not
		// lifecycle transitions.
	}
}

func (b *UnitBackend) track(unit, appID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.units[unit] = appID
}

func (b *UnitBackend) forget(unit string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.units, unit)
}

func (b *UnitBackend) appFor(unit string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	appID, ok := b.units[unit]
	return appID, ok
}
