package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentchat.yaml")
	if err := os.WriteFile(path, []byte("model: a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	events := make(chan ChangeEvent, 4)
	unsubscribe := w.Subscribe(func(e ChangeEvent) { events <- e })
	defer unsubscribe()

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte("model: b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		abs, _ := filepath.Abs(path)
		if e.Path != abs {
			t.Errorf("event path = %q, want %q", e.Path, abs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentchat.yaml")
	if err := os.WriteFile(path, []byte("model: a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	var count atomic.Int32
	w.Subscribe(func(ChangeEvent) { count.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if n := count.Load(); n != 0 {
		t.Errorf("got %d notifications for an unrelated file", n)
	}
}

func TestWatcher_Unsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentchat.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	var count atomic.Int32
	unsubscribe := w.Subscribe(func(ChangeEvent) { count.Add(1) })
	unsubscribe()

	w.fire()
	if count.Load() != 0 {
		t.Error("unsubscribed callback was called")
	}
}

func TestWatcher_CloseWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentchat.yaml")
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Second close is a no-op.
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
