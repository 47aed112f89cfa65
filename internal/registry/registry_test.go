package registry

import (
	"context"
	"net"
	"os"
	"testing"
	"time"
)

type fakeProcess struct {
	pid     int
	alive   bool
	waitErr error
	waitCh  chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, alive: true, waitCh: make(chan struct{})}
}

func (f *fakeProcess) PID() int                { return f.pid }
func (f *fakeProcess) Signal(os.Signal) error  { f.alive = false; close(f.waitCh); return nil }
func (f *fakeProcess) Kill() error             { f.alive = false; return nil }
func (f *fakeProcess) Alive() bool             { return f.alive }
func (f *fakeProcess) Wait() error {
	<-f.waitCh
	return f.waitErr
}

func TestRegisterAndUnregisterReleasesPort(t *testing.T) {
	r := New()
	proc := newFakeProcess(100)
	if _, err := r.Register("m1", proc, 9001, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.GetByPort(9001); !ok {
		t.Fatal("expected port 9001 to resolve to the record")
	}
	if !r.Unregister("m1") {
		t.Fatal("expected unregister to report removal")
	}
	if _, ok := r.GetByPort(9001); ok {
		t.Fatal("expected port to be released after unregister")
	}
	if r.Unregister("m1") {
		t.Fatal("expected unregister to be idempotent")
	}
}

func TestRegisterReplacesExistingRecord(t *testing.T) {
	r := New()
	if _, err := r.Register("m1", newFakeProcess(1), 9001, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("m1", newFakeProcess(2), 9002, ExecServer, nil); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if _, ok := r.GetByPort(9001); ok {
		t.Fatal("expected old port released on replacement")
	}
	record, ok := r.Get("m1")
	if !ok || record.Port != 9002 {
		t.Fatalf("expected replaced record with new port, got %+v", record)
	}
}

func TestHeartbeatTransitionsStartingToRunning(t *testing.T) {
	r := New()
	if _, err := r.Register("m1", newFakeProcess(1), 9001, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Heartbeat("m1")
	record, _ := r.Get("m1")
	if record.Status != StatusRunning {
		t.Fatalf("expected running status, got %s", record.Status)
	}
}

func TestAllocatePortSkipsPreferredBoundByOS(t *testing.T) {
	r := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	preferred := ln.Addr().(*net.TCPAddr).Port

	port, err := r.AllocatePort(preferred, 20000, 20010)
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	if port == preferred {
		t.Fatal("expected allocator to skip a port already bound on the OS")
	}
	if port < 20000 || port > 20010 {
		t.Fatalf("expected port within fallback range, got %d", port)
	}
}

func TestAllocatePortExhausted(t *testing.T) {
	r := New()
	if _, err := r.Register("m1", newFakeProcess(1), 21000, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := r.AllocatePort(21000, 21000, 21000)
	if !IsPortExhausted(err) {
		t.Fatalf("expected ErrPortExhausted, got %v", err)
	}
}

func TestKillTerminatesAndUnregisters(t *testing.T) {
	r := New()
	proc := newFakeProcess(1)
	if _, err := r.Register("m1", proc, 9001, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Kill(context.Background(), "m1", 50*time.Millisecond); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if _, ok := r.Get("m1"); ok {
		t.Fatal("expected record removed after kill")
	}
}

func TestCleanupZombiesRemovesDeadRecords(t *testing.T) {
	r := New()
	proc := newFakeProcess(1)
	proc.alive = false
	if _, err := r.Register("m1", proc, 9001, ExecServer, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if removed := r.CleanupZombies(); removed != 1 {
		t.Fatalf("expected 1 zombie removed, got %d", removed)
	}
	if _, ok := r.Get("m1"); ok {
		t.Fatal("expected zombie record removed")
	}
}
