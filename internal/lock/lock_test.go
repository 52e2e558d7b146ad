package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestMutexMap_DoReleases(t *testing.T) {
	m := NewMutexMap()
	calls := 0

	m.Do("/logs/a.log", func() { calls++ })
	// The mutex is released after fn returns.
	m.Do("/logs/a.log", func() { calls++ })

	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestMutexMap_DifferentKeys(t *testing.T) {
	m := NewMutexMap()
	done := make(chan struct{})

	m.Do("/logs/a.log", func() {
		go func() {
			// b.log is not blocked by a.log
			m.Do("/logs/b.log", func() {})
			close(done)
		}()
		<-done
	})
}

func TestFileLock_TryLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "monitor.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()
}

func TestFileLock_DoubleLockRejected(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "monitor.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	err := fl2.TryLock()
	if err == nil {
		fl2.Unlock()
		t.Fatal("expected second TryLock to fail")
	}
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "monitor.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("re-lock after unlock failed: %v", err)
	}
	fl2.Unlock()
}

func TestFileLock_DoubleUnlockSafe(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "monitor.lock")

	fl := NewFileLock(lockPath)
	fl.TryLock()
	fl.Unlock()
	// Double unlock should be safe
	if err := fl.Unlock(); err != nil {
		t.Fatalf("double unlock should be safe, got: %v", err)
	}
}

func TestFileLock_CreatesDirAndWritesPID(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), ".taskmaster", "monitor.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()

	pid, err := ReadPID(lockPath)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestMutexMap_Do(t *testing.T) {
	m := NewMutexMap()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do("/logs/pipeline.log", func() { counter++ })
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected counter=50, got %d", counter)
	}
}
