package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitForOutput polls out until it contains want.
func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("Got: output %q. Want: it to contain %q.", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchCmd(t *testing.T) {
	path := filepath.Join(mapsDir(t), "main.js.map")
	out := &syncBuffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs([]string{"watch", path, "1:1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	// The directory is watched before the first answer is printed.
	waitForOutput(t, out, "1:1\tmain.go:1:1\n")

	t.Run("rewritten in place", func(t *testing.T) {
		if err := os.WriteFile(path, []byte(otherMap), 0o644); err != nil {
			t.Fatalf("Got: failed to rewrite map: %v. Want: no error.", err)
		}
		waitForOutput(t, out, "1:1\tb.go:1:1\n")
	})

	t.Run("replaced by rename", func(t *testing.T) {
		tmp := path + ".tmp"
		replacement := `{"version": 3, "sources": ["c.go"], "names": [], "mappings": "AAAA"}`
		if err := os.WriteFile(tmp, []byte(replacement), 0o644); err != nil {
			t.Fatalf("Got: failed to write replacement: %v. Want: no error.", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatalf("Got: failed to rename replacement: %v. Want: no error.", err)
		}
		waitForOutput(t, out, "1:1\tc.go:1:1\n")
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Got: watch returned error: %v. Want: no error after cancellation.", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Got: watch still running after cancellation. Want: it to return.")
	}
}

func TestWatchCmdInvalidPosition(t *testing.T) {
	path := filepath.Join(mapsDir(t), "main.js.map")
	if _, err := run(t, "watch", path, "nope"); err == nil {
		t.Errorf("Got: watch with an invalid position succeeded. Want: error.")
	}
}
