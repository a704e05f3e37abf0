package launcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

type stubRuntime struct {
	released int
}

func (r *stubRuntime) Release() { r.released++ }

type stubBackend struct {
	starts      int
	activations int
	failWith    error
}

func (b *stubBackend) start(_ context.Context, rec *catalog.Record) (bool, error) {
	b.starts++
	if b.failWith != nil {
		return false, b.failWith
	}
	rec.Runtime = &stubRuntime{}
	rec.Status = catalog.StatusStarting
	return false, nil
}

func (b *stubBackend) activate(string, catalog.Runtime) { b.activations++ }

func testLauncher(t *testing.T, recs ...*catalog.Record) (*Launcher, *stubBackend) {
	t.Helper()

	cat := catalog.New()
	for _, rec := range recs {
		if err := cat.Add(rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	l := New(cat, logging.NewNop())
	stub := &stubBackend{}
	l.register(catalog.ActivationBus, stub)
	return l, stub
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func noEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v for %q", ev.Kind, ev.AppID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartUnknownID(t *testing.T) {
	l, stub := testLauncher(t)
	_, events := l.Subscribe()

	err := l.Start(context.Background(), "nonexistent")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if stub.starts != 0 {
		t.Error("backend should not have been invoked")
	}
	noEvent(t, events)
}

func TestStartIdempotentWhileStarting(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, stub := testLauncher(t, rec)

	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("repeated start failed: %v", err)
	}

	if stub.starts != 1 {
		t.Errorf("expected a single backend start, got %d", stub.starts)
	}
	if rec.Status != catalog.StatusStarting {
		t.Errorf("expected status starting, got %s", rec.Status)
	}
}

func TestRepeatedStartWhileRunningActivates(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, stub := testLauncher(t, rec)

	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !l.started(rec.ID, nil) {
		t.Fatal("readiness transition failed")
	}

	_, events := l.Subscribe()

	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("repeated start failed: %v", err)
	}

	if stub.activations != 1 {
		t.Errorf("expected one activation, got %d", stub.activations)
	}
	if rec.Status != catalog.StatusRunning {
		t.Errorf("expected status running, got %s", rec.Status)
	}
	noEvent(t, events)
}

func TestDuplicateReadinessCollapses(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, _ := testLauncher(t, rec)
	_, events := l.Subscribe()

	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	l.started(rec.ID, nil)
	l.started(rec.ID, nil)

	ev := nextEvent(t, events)
	if ev.Kind != EventStarted || ev.AppID != rec.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	noEvent(t, events)
}

func TestTerminatedExactlyOnce(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, _ := testLauncher(t, rec)

	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	l.started(rec.ID, nil)

	rt := rec.Runtime.(*stubRuntime)
	_, events := l.Subscribe()

	l.terminated(rec.ID)
	l.terminated(rec.ID)

	ev := nextEvent(t, events)
	if ev.Kind != EventTerminated || ev.AppID != rec.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	noEvent(t, events)

	if rt.released != 1 {
		t.Errorf("expected runtime released exactly once, got %d", rt.released)
	}
	if rec.Status != catalog.StatusInactive {
		t.Errorf("expected status inactive, got %s", rec.Status)
	}
	if rec.Runtime != nil {
		t.Error("expected runtime handle to be cleared")
	}
}

func TestStartFailureLeavesInactive(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, stub := testLauncher(t, rec)
	stub.failWith = ErrSpawnFailed

	err := l.Start(context.Background(), rec.ID)
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
	if rec.Status != catalog.StatusInactive {
		t.Errorf("expected status inactive after failure, got %s", rec.Status)
	}
	if rec.Runtime != nil {
		t.Error("expected no runtime handle after failure")
	}

	// A retry must reach the backend again.
	stub.failWith = nil
	if err := l.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if stub.starts != 2 {
		t.Errorf("expected two backend starts, got %d", stub.starts)
	}
}

func TestHandleStatusCoupling(t *testing.T) {
	rec := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	l, _ := testLauncher(t, rec)

	check := func(stage string) {
		t.Helper()
		hasHandle := rec.Runtime != nil
		active := rec.Status != catalog.StatusInactive
		if hasHandle != active {
			t.Errorf("%s: runtime handle presence %v does not match status %s",
				stage, hasHandle, rec.Status)
		}
	}

	check("initial")
	l.Start(context.Background(), rec.ID)
	check("starting")
	l.started(rec.ID, nil)
	check("running")
	l.terminated(rec.ID)
	check("terminated")
}

func TestBackendIsolation(t *testing.T) {
	process := &catalog.Record{ID: "clock", Command: "clock --tray", Activation: catalog.ActivationProcess}
	bus := &catalog.Record{ID: "org.example.Notes", Activation: catalog.ActivationBus}
	unit := &catalog.Record{ID: "radio", Command: "radio", Activation: catalog.ActivationUnit}

	cat := catalog.New()
	for _, rec := range []*catalog.Record{process, bus, unit} {
		if err := cat.Add(rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	l := New(cat, logging.NewNop())
	stubs := map[catalog.Activation]*stubBackend{
		catalog.ActivationProcess: {},
		catalog.ActivationBus:     {},
		catalog.ActivationUnit:    {},
	}
	for kind, stub := range stubs {
		l.register(kind, stub)
	}

	if err := l.Start(context.Background(), "clock"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if stubs[catalog.ActivationProcess].starts != 1 {
		t.Error("process backend should have been invoked")
	}
	if stubs[catalog.ActivationBus].starts != 0 || stubs[catalog.ActivationUnit].starts != 0 {
		t.Error("only the process backend may be touched for a process record")
	}
}
