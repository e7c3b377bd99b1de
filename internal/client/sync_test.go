package client

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nxsync/internal/auth"
	"nxsync/internal/metastore"
	"nxsync/internal/pairing"
	"nxsync/internal/server"
	"nxsync/internal/storage"
	"nxsync/internal/syncer"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := metastore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	backend, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	files := syncer.NewFileStore(store)
	coord := syncer.NewCoordinator(syncer.NewIngestor(backend, files, 0), files, 4, log)
	h := server.NewHandler(files, backend, coord, pairing.NewService(store), auth.NewService(store, "test-secret"), "local", log)

	ts := httptest.NewServer(server.NewRouter(h, auth.NewService(store, "test-secret"), false, log))
	t.Cleanup(ts.Close)
	return ts
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSyncAllAgainstServer(t *testing.T) {
	ts := startTestServer(t)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for rel, body := range map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	j := openTestJournal(t)
	s := NewSyncer(NewAPI(ts.URL, ""), j, root, "f1", nil, quietLog())

	result, err := s.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 2 || result.Failed != 0 {
		t.Fatalf("uploaded=%d failed=%d, want 2/0", result.Uploaded, result.Failed)
	}

	// Nothing changed, nothing moves.
	result, err = s.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 0 {
		t.Fatalf("rerun uploaded=%d, want 0", result.Uploaded)
	}

	// Touch one file forward; only it goes up again.
	future := time.Now().Add(5 * time.Second)
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("alpha v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	result, err = s.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 1 {
		t.Fatalf("after touch uploaded=%d, want 1", result.Uploaded)
	}
}

func TestSyncAllJournalsFailures(t *testing.T) {
	ts := startTestServer(t)
	ts.Close() // every upload will fail

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	j := openTestJournal(t)
	s := NewSyncer(NewAPI(ts.URL, ""), j, root, "f1", nil, quietLog())

	result, err := s.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Uploaded != 0 {
		t.Fatalf("uploaded=%d failed=%d, want 0/1", result.Uploaded, result.Failed)
	}

	stats, err := j.Stats("f1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.FailedFiles != 1 {
		t.Errorf("journal failed=%d, want 1", stats.FailedFiles)
	}
}

func TestPairAndLoginFlow(t *testing.T) {
	ts := startTestServer(t)
	api := NewAPI(ts.URL, "")
	ctx := context.Background()

	if err := api.Health(ctx); err != nil {
		t.Fatal(err)
	}

	// Login before any account exists is a 404, the signal to register.
	if _, err := api.Login(ctx, "a@b.c", "pw"); !IsNotFound(err) {
		t.Fatalf("login err=%v, want not-found", err)
	}
	token, err := api.Register(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("empty token from register")
	}
	if _, err := api.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatal(err)
	}

	// Pairing with a made-up code is a 404.
	if _, err := api.Pair(ctx, "NOPE99"); !IsNotFound(err) {
		t.Fatalf("pair err=%v, want not-found", err)
	}
}
