package daemon

import (
	"context"
	"testing"
)

type noopRunner struct{}

func (noopRunner) Run(context.Context, Job) error { return nil }

func TestDaemonRegisterStartStop(t *testing.T) {
	d := New(noopRunner{}, 2)
	dir := t.TempDir()

	if err := d.Register(context.Background(), dir); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if !status.Running || len(status.Repos) != 1 {
		t.Fatalf("got %+v, want running with 1 repo", status)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDaemonUnregisterRemovesRepo(t *testing.T) {
	d := New(noopRunner{}, 2)
	dir := t.TempDir()
	_ = d.Register(context.Background(), dir)

	if err := d.Unregister(dir); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := d.state.Get(dir); ok {
		t.Error("expected repo to be removed from state")
	}
}

func TestDaemonClearFailuresRequiresFailedState(t *testing.T) {
	d := New(noopRunner{}, 2)
	dir := t.TempDir()
	_ = d.Register(context.Background(), dir)

	if err := d.ClearFailures(dir); err == nil {
		t.Fatal("expected ClearFailures on a REGISTERED repo to fail")
	}
}
