package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"

	"nxsync/internal/syncer"
)

// Syncer pushes a local folder to the server, journaling every outcome so
// the next run only touches what changed.
type Syncer struct {
	api      *API
	journal  *Journal
	root     string
	folderID string
	workers  int
	log      *logrus.Logger
}

// SyncerConfig holds tunables for the client syncer.
type SyncerConfig struct {
	Workers int
}

// DefaultSyncerConfig returns the default tunables.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{Workers: 8}
}

// NewSyncer wires a client syncer for one folder.
func NewSyncer(api *API, journal *Journal, root, folderID string, cfg *SyncerConfig, log *logrus.Logger) *Syncer {
	if cfg == nil {
		def := DefaultSyncerConfig()
		cfg = &def
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if log == nil {
		log = logrus.New()
	}
	return &Syncer{
		api:      api,
		journal:  journal,
		root:     root,
		folderID: folderID,
		workers:  cfg.Workers,
		log:      log,
	}
}

// SyncResult summarizes one client sync run.
type SyncResult struct {
	Scanned  int
	Uploaded int
	Failed   int
}

// SyncAll scans the folder, filters through the journal, and uploads the
// pending files with a bounded worker pool. Per-file failures are journaled
// and do not abort the batch.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	local, err := syncer.ListFiles(s.root)
	if err != nil {
		return nil, err
	}
	pending, err := s.journal.Pending(s.folderID, local)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{Scanned: len(local)}
	if len(pending) == 0 {
		return result, nil
	}
	if err := s.journal.MarkPending(s.folderID, pending); err != nil {
		return nil, err
	}

	var totalSize int64
	for _, f := range pending {
		totalSize += f.Size
	}
	bar := pb.New64(totalSize)
	bar.Set(pb.Bytes, true)
	bar.Start()
	defer bar.Finish()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	jobs := make(chan syncer.LocalFile)
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				err := s.uploadOne(ctx, file)
				mu.Lock()
				if err != nil {
					result.Failed++
				} else {
					result.Uploaded++
				}
				mu.Unlock()
				bar.Add64(file.Size)
				if err != nil {
					s.log.WithField("relPath", file.RelPath).WithError(err).Warn("upload failed")
				}
			}
		}()
	}
	for _, file := range pending {
		jobs <- file
	}
	close(jobs)
	wg.Wait()
	return result, nil
}

func (s *Syncer) uploadOne(ctx context.Context, file syncer.LocalFile) error {
	err := s.api.Upload(ctx, s.folderID, file.RelPath, file.AbsPath, file.ModTime)
	status := StatusUploaded
	if err != nil {
		status = StatusFailed
	}
	if jerr := s.journal.Record(s.folderID, file.RelPath, file.Size, file.ModTime, time.Now().UnixMilli(), status); jerr != nil {
		s.log.WithField("relPath", file.RelPath).WithError(jerr).Warn("journal write failed")
	}
	return err
}

// Watch runs an initial full sync, then uploads files as the watcher reports
// changes, until ctx is cancelled.
func (s *Syncer) Watch(ctx context.Context) error {
	if _, err := s.SyncAll(ctx); err != nil {
		return err
	}

	w, err := NewWatcher(s.root, s.log)
	if err != nil {
		return err
	}
	defer w.Close()
	go w.Run(ctx)

	s.log.WithField("folder", s.root).Info("watching for changes")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.Events():
			file, err := s.localFile(event.Path)
			if err != nil {
				s.log.WithField("path", event.Path).WithError(err).Warn("skipping event")
				continue
			}
			if err := s.uploadOne(ctx, *file); err != nil {
				continue
			}
			s.log.WithFields(logrus.Fields{
				"relPath": file.RelPath,
				"op":      event.Op,
			}).Info("uploaded")
		}
	}
}

func (s *Syncer) localFile(absPath string) (*syncer.LocalFile, error) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return nil, fmt.Errorf("relativize %s: %w", absPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	return &syncer.LocalFile{
		RelPath: filepath.ToSlash(rel),
		AbsPath: absPath,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixMilli(),
	}, nil
}
