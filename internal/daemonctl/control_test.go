package daemonctl_test

import (
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"l2writer/internal/daemonctl"
	"l2writer/internal/testsupport"
)

func TestProcessInfoWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected no daemon, got running=%v pid=%d", running, pid)
	}
	if _, err := daemonctl.Stop(cfg, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestProcessInfoReadsHeldLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	held := flock.New(cfg.DaemonLockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	testsupport.WriteFile(t, daemonctl.PIDPath(cfg), []byte(strconv.Itoa(os.Getpid())+"\n"))

	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Fatalf("expected running daemon with our pid, got running=%v pid=%d", running, pid)
	}
	if _, err := daemonctl.Stop(cfg, time.Second); err == nil {
		t.Fatal("Stop must refuse to signal the current process")
	}
}

func TestWaitForShutdownTimesOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	held := flock.New(cfg.DaemonLockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	if err := daemonctl.WaitForShutdown(cfg, 50*time.Millisecond); err == nil {
		t.Fatal("expected timeout while lock is held")
	}
	_ = held.Unlock()
	if err := daemonctl.WaitForShutdown(cfg, time.Second); err != nil {
		t.Fatalf("WaitForShutdown after unlock: %v", err)
	}
}
