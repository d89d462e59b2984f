package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "resume.txt")
	other := filepath.Join(dir, "notes.txt")
	for _, f := range []string{resume, other} {
		if err := os.WriteFile(f, []byte("v1"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	changes := make(chan []string, 4)
	fw, err := NewFileWatcher([]string{resume, resume}, 50*time.Millisecond, func(changed []string) {
		changes <- changed
	}, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}
	if got := fw.GetWatchedFiles(); len(got) != 1 {
		t.Fatalf("duplicates not removed: %v", got)
	}
	if err := fw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = fw.Stop() }()

	if err := fw.Start(); err == nil {
		t.Error("second Start should fail")
	}

	// unrelated file in the same directory
	if err := os.WriteFile(other, []byte("v2"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-changes:
		t.Fatalf("unexpected change for unwatched file: %v", c)
	case <-time.After(150 * time.Millisecond):
	}

	// burst of writes coalesces into one callback
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(resume, []byte("version two "+string(rune('a'+i))), 0600); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case c := <-changes:
		if len(c) != 1 || filepath.Base(c[0]) != "resume.txt" {
			t.Errorf("unexpected change set: %v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case c := <-changes:
		t.Errorf("debounce did not coalesce writes: %v", c)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestFileWatcherStop(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "job.txt")
	if err := os.WriteFile(f, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	fw, err := NewFileWatcher([]string{f}, 0, func([]string) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.Start(); err != nil {
		t.Fatal(err)
	}
	if !fw.IsRunning() {
		t.Error("expected running")
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fw.IsRunning() {
		t.Error("expected stopped")
	}
	if err := fw.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestNewFileWatcherValidation(t *testing.T) {
	if _, err := NewFileWatcher(nil, 0, func([]string) {}, nil); err == nil {
		t.Error("expected error for no files")
	}
	if _, err := NewFileWatcher([]string{"a.txt"}, 0, nil, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
