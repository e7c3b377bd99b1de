package syncer

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"nxsync/internal/storage"
	"nxsync/pkg/models"
)

// IngestRequest carries one file into storage and the metadata index.
type IngestRequest struct {
	FolderID     string
	RelPath      string
	LastModified int64 // milliseconds since epoch, producer-supplied
	Hash         string
	Size         int64
	Body         io.Reader

	// Cleanup releases the staging resource behind Body (temp file, upload
	// buffer). It runs on every exit path, success or failure.
	Cleanup func()
}

// Ingestor normalizes, stores and indexes uploaded files.
type Ingestor struct {
	backend storage.Backend
	files   *FileStore
	timeout time.Duration
	now     func() time.Time
}

// DefaultStorageTimeout bounds a single backend save.
const DefaultStorageTimeout = 60 * time.Second

// NewIngestor wires the pipeline. A zero timeout falls back to the default.
func NewIngestor(backend storage.Backend, files *FileStore, timeout time.Duration) *Ingestor {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return &Ingestor{
		backend: backend,
		files:   files,
		timeout: timeout,
		now:     time.Now,
	}
}

// Ingest writes the bytes through the storage backend, then replaces the
// active record for (folderId, relPath). The metadata upsert happens only
// after the backend confirms the write, so a storage failure leaves the
// index untouched and the whole ingest is retryable.
func (ing *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*models.FileRecord, error) {
	if req.Cleanup != nil {
		defer req.Cleanup()
	}

	relPath, err := NormalizeRelPath(req.RelPath)
	if err != nil {
		return nil, err
	}
	folderID := req.FolderID
	if folderID == "" {
		folderID = "default"
	}
	storageKey := folderID + "/" + relPath

	saveCtx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()
	if err := ing.backend.Save(saveCtx, storageKey, req.Body, req.Size); err != nil {
		return nil, &StorageError{Op: "save", Err: err}
	}

	// A superseded ingest stops here: the newer write for the same key owns
	// the record from now on.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := models.FileRecord{
		ID:           uuid.NewString(),
		FolderID:     folderID,
		RelPath:      relPath,
		LastModified: req.LastModified,
		Hash:         req.Hash,
		Size:         req.Size,
		StorageKey:   storageKey,
		CreatedAt:    ing.now().UnixMilli(),
	}
	if err := ing.files.Upsert(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
