package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalSaveOpenRoundTrip(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		body string
	}{
		{
			name: "flat key",
			key:  "folder/a.txt",
			body: "hello",
		},
		{
			name: "nested key",
			key:  "folder/docs/deep/b.bin",
			body: "nested bytes",
		},
		{
			name: "empty body",
			key:  "folder/empty",
			body: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := backend.Save(ctx, tt.key, strings.NewReader(tt.body), int64(len(tt.body))); err != nil {
				t.Fatal(err)
			}
			rc, err := backend.Open(ctx, tt.key)
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, []byte(tt.body)) {
				t.Errorf("read back %q, want %q", got, tt.body)
			}
		})
	}
}

func TestLocalOverwriteReplacesBytes(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key := "f/doc.txt"
	for _, body := range []string{"first version", "second"} {
		if err := backend.Save(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatal(err)
		}
	}

	rc, err := backend.Open(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Errorf("read back %q, want %q", got, "second")
	}
}

func TestLocalDelete(t *testing.T) {
	root := t.TempDir()
	backend, err := NewLocal(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key := "f/gone.txt"
	if err := backend.Save(ctx, key, strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.Open(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("open after delete: err=%v, want ErrObjectNotFound", err)
	}

	// Deleting an absent key is best-effort, not an error.
	if err := backend.Delete(ctx, "f/never-existed"); err != nil {
		t.Errorf("delete absent key: %v", err)
	}
}

// gatedReader hands out one chunk, signals, then blocks until released.
type gatedReader struct {
	chunk    []byte
	started  chan struct{}
	release  chan struct{}
	consumed bool
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if !g.consumed {
		g.consumed = true
		n := copy(p, g.chunk)
		close(g.started)
		return n, nil
	}
	<-g.release
	return 0, io.EOF
}

func TestLocalCancelledSaveKeepsNewerWrite(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := "f/doc.txt"

	ctx, cancel := context.WithCancel(context.Background())
	reader := &gatedReader{
		chunk:   []byte("stale bytes"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		done <- backend.Save(ctx, key, reader, int64(len(reader.chunk)))
	}()
	<-reader.started

	// A newer write for the same key lands while the first is mid-copy and
	// its context has been cancelled.
	if err := backend.Save(context.Background(), key, strings.NewReader("fresh"), 5); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(reader.release)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled save err=%v, want context.Canceled", err)
	}
	rc, err := backend.Open(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "fresh" {
		t.Errorf("published bytes %q, want %q", got, "fresh")
	}
}

func TestLocalNoStagingLeftovers(t *testing.T) {
	root := t.TempDir()
	backend, err := NewLocal(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.Save(context.Background(), "f/a.txt", strings.NewReader("ok"), 2); err != nil {
		t.Fatal(err)
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.Base(path), ".partial") {
			t.Errorf("staging file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
