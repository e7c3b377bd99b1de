package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"nxsync/pkg/models"
)

// FileError records a single file's failure during a batch sync.
type FileError struct {
	RelPath string `json:"relPath"`
	Err     string `json:"error"`
}

// SyncResult aggregates a full-sync run. One bad file never aborts the batch.
type SyncResult struct {
	Synced int         `json:"syncedCount"`
	Failed []FileError `json:"failed,omitempty"`
}

type flight struct {
	cancel context.CancelFunc
}

// Coordinator drives full and incremental syncs. It bounds the number of
// simultaneous in-flight ingests and tracks them by (folderId, relPath) key
// so a newer ingest for the same key supersedes — cancels — the older one.
type Coordinator struct {
	ingestor *Ingestor
	files    *FileStore
	log      *logrus.Logger
	workers  int

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewCoordinator wires the coordinator. workers caps simultaneous ingests.
func NewCoordinator(ingestor *Ingestor, files *FileStore, workers int, log *logrus.Logger) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = logrus.New()
	}
	return &Coordinator{
		ingestor: ingestor,
		files:    files,
		log:      log,
		workers:  workers,
		sem:      make(chan struct{}, workers),
		inflight: make(map[string]*flight),
	}
}

// Ingest runs one incremental ingest, e.g. for a single watch event. A watch
// event is inherently a just-changed signal, so no reconciliation happens:
// the file is uploaded unconditionally.
func (c *Coordinator) Ingest(ctx context.Context, req IngestRequest) (*models.FileRecord, error) {
	relPath, err := NormalizeRelPath(req.RelPath)
	if err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, err
	}
	folderID := req.FolderID
	if folderID == "" {
		folderID = "default"
	}
	key := models.FileKey(folderID, relPath)

	c.mu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.cancel()
	}
	flightCtx, cancel := context.WithCancel(ctx)
	fl := &flight{cancel: cancel}
	c.inflight[key] = fl
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.inflight[key] == fl {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()

	// Excess requests queue here instead of spawning unbounded work.
	select {
	case c.sem <- struct{}{}:
	case <-flightCtx.Done():
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, flightCtx.Err()
	}
	defer func() { <-c.sem }()

	return c.ingestor.Ingest(flightCtx, req)
}

// SyncFolder runs a full sync: list the directory, reconcile against the
// metadata index, and ingest each stale file. Per-file failures are recorded
// and the rest of the batch continues.
func (c *Coordinator) SyncFolder(ctx context.Context, folderPath, folderID string) (*SyncResult, error) {
	local, err := ListFiles(folderPath)
	if err != nil {
		return nil, err
	}
	existing, err := c.files.ListFolder(folderID)
	if err != nil {
		return nil, err
	}
	stale := Reconcile(existing, local)

	c.log.WithFields(logrus.Fields{
		"folderId": folderID,
		"local":    len(local),
		"stale":    len(stale),
	}).Info("full sync starting")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result SyncResult
	)
	jobs := make(chan LocalFile)
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				err := c.ingestLocalFile(ctx, folderID, file)
				mu.Lock()
				if err != nil {
					result.Failed = append(result.Failed, FileError{RelPath: file.RelPath, Err: err.Error()})
				} else {
					result.Synced++
				}
				mu.Unlock()
				if err != nil {
					c.log.WithFields(logrus.Fields{
						"folderId": folderID,
						"relPath":  file.RelPath,
					}).WithError(err).Warn("file sync failed")
				}
			}
		}()
	}
	for _, file := range stale {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	c.log.WithFields(logrus.Fields{
		"folderId": folderID,
		"synced":   result.Synced,
		"failed":   len(result.Failed),
	}).Info("full sync finished")
	return &result, nil
}

// ingestLocalFile goes through Ingest so full-sync uploads share the same
// in-flight table and concurrency bound as incremental events.
func (c *Coordinator) ingestLocalFile(ctx context.Context, folderID string, file LocalFile) error {
	f, err := os.Open(filepath.Clean(file.AbsPath))
	if err != nil {
		return &StorageError{Op: "open source", Err: err}
	}
	_, err = c.Ingest(ctx, IngestRequest{
		FolderID:     folderID,
		RelPath:      file.RelPath,
		LastModified: file.ModTime,
		Size:         file.Size,
		Body:         f,
		Cleanup:      func() { f.Close() },
	})
	return err
}
