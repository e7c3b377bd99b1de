package syncer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"nxsync/internal/metastore"
	"nxsync/internal/storage"
)

type ingestEnv struct {
	backend *storage.Local
	files   *FileStore
	ing     *Ingestor
}

func newIngestEnv(t *testing.T) *ingestEnv {
	t.Helper()
	backend, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := metastore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	files := NewFileStore(store)
	return &ingestEnv{
		backend: backend,
		files:   files,
		ing:     NewIngestor(backend, files, 0),
	}
}

func TestIngestRoundTrip(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	body := "the quick brown fox"

	rec, err := env.ing.Ingest(ctx, IngestRequest{
		FolderID:     "docs",
		RelPath:      "notes/a.txt",
		LastModified: 1000,
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Error("ingest did not assign an id")
	}
	if rec.StorageKey != "docs/notes/a.txt" {
		t.Errorf("storageKey=%q, want docs/notes/a.txt", rec.StorageKey)
	}

	rc, err := env.backend.Open(ctx, rec.StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, []byte(body)) {
		t.Errorf("stored bytes %q, want %q", got, body)
	}
}

func TestIngestReplacesRecordWholesale(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()

	first, err := env.ing.Ingest(ctx, IngestRequest{
		FolderID:     "docs",
		RelPath:      "a.txt",
		LastModified: 1000,
		Size:         3,
		Body:         strings.NewReader("old"),
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := env.ing.Ingest(ctx, IngestRequest{
		FolderID:     "docs",
		RelPath:      "a.txt",
		LastModified: 2000,
		Size:         3,
		Body:         strings.NewReader("new"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Error("replacement kept the old record id")
	}

	// One active record per pair.
	records, err := env.files.ListFolder("docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("folder has %d records, want 1", len(records))
	}
	if records[0].LastModified != 2000 {
		t.Errorf("active record lastModified=%d, want 2000", records[0].LastModified)
	}

	rc, err := env.backend.Open(ctx, records[0].StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "new" {
		t.Errorf("stored bytes %q, want %q", got, "new")
	}
}

func TestIngestRejectsTraversalBeforeStorageWrite(t *testing.T) {
	env := newIngestEnv(t)

	saw := &countingBackend{Backend: env.backend}
	ing := NewIngestor(saw, env.files, 0)

	_, err := ing.Ingest(context.Background(), IngestRequest{
		FolderID: "docs",
		RelPath:  "../../etc/passwd",
		Size:     4,
		Body:     strings.NewReader("pwnd"),
	})
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("err=%v, want ErrPathEscape", err)
	}
	if saw.saves != 0 {
		t.Errorf("backend saw %d saves, want 0", saw.saves)
	}
	if n, _ := env.files.ListAll(); len(n) != 0 {
		t.Errorf("metadata store has %d records, want 0", len(n))
	}
}

func TestIngestEmptyRelPath(t *testing.T) {
	env := newIngestEnv(t)
	_, err := env.ing.Ingest(context.Background(), IngestRequest{
		FolderID: "docs",
		RelPath:  "",
		Body:     strings.NewReader("x"),
		Size:     1,
	})
	if !errors.Is(err, ErrEmptyRelPath) {
		t.Errorf("err=%v, want ErrEmptyRelPath", err)
	}
}

func TestIngestStorageFailureLeavesMetadataUntouched(t *testing.T) {
	env := newIngestEnv(t)
	failing := &failingBackend{}
	ing := NewIngestor(failing, env.files, 0)

	cleaned := false
	_, err := ing.Ingest(context.Background(), IngestRequest{
		FolderID: "docs",
		RelPath:  "a.txt",
		Size:     1,
		Body:     strings.NewReader("x"),
		Cleanup:  func() { cleaned = true },
	})

	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("err=%v, want *StorageError", err)
	}
	if records, _ := env.files.ListAll(); len(records) != 0 {
		t.Errorf("metadata store has %d records after storage failure, want 0", len(records))
	}
	if !cleaned {
		t.Error("cleanup did not run on the failure path")
	}
}

func TestIngestCleanupRunsOnSuccess(t *testing.T) {
	env := newIngestEnv(t)
	cleaned := false
	_, err := env.ing.Ingest(context.Background(), IngestRequest{
		FolderID: "docs",
		RelPath:  "a.txt",
		Size:     1,
		Body:     strings.NewReader("x"),
		Cleanup:  func() { cleaned = true },
	})
	if err != nil {
		t.Fatal(err)
	}
	if !cleaned {
		t.Error("cleanup did not run on the success path")
	}
}

type countingBackend struct {
	storage.Backend
	saves int
}

func (c *countingBackend) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	c.saves++
	return c.Backend.Save(ctx, key, r, size)
}

type failingBackend struct{}

func (f *failingBackend) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	return errors.New("backend down")
}

func (f *failingBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *failingBackend) Delete(ctx context.Context, key string) error {
	return nil
}
