package syncer

import (
	"encoding/json"
	"fmt"
	"sort"

	"nxsync/internal/metastore"
	"nxsync/pkg/models"
)

// filesCollection holds FileRecords keyed by models.FileKey.
const filesCollection = "files"

// FileStore is the typed view over the files collection.
type FileStore struct {
	store *metastore.Store
}

// NewFileStore wires the store.
func NewFileStore(store *metastore.Store) *FileStore {
	return &FileStore{store: store}
}

// Upsert replaces the active record for the record's (folderId, relPath) pair.
func (f *FileStore) Upsert(rec models.FileRecord) error {
	return f.store.Upsert(filesCollection, rec.Key(), rec)
}

// Get returns the record for a (folderId, relPath) pair.
func (f *FileStore) Get(folderID, relPath string) (*models.FileRecord, error) {
	var rec models.FileRecord
	if err := f.store.Get(filesCollection, models.FileKey(folderID, relPath), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID scans for the record with the given id.
func (f *FileStore) GetByID(id string) (*models.FileRecord, error) {
	all, err := f.ListAll()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, metastore.ErrNotFound
}

// DeleteByID removes the record with the given id.
func (f *FileStore) DeleteByID(id string) (*models.FileRecord, error) {
	rec, err := f.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := f.store.Delete(filesCollection, rec.Key()); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListAll returns every record, ordered by folder then path.
func (f *FileStore) ListAll() ([]models.FileRecord, error) {
	raws, err := f.store.List(filesCollection)
	if err != nil {
		return nil, err
	}
	records := make([]models.FileRecord, 0, len(raws))
	for _, raw := range raws {
		var rec models.FileRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode file record: %w", err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].FolderID != records[j].FolderID {
			return records[i].FolderID < records[j].FolderID
		}
		return records[i].RelPath < records[j].RelPath
	})
	return records, nil
}

// ListFolder returns the records grouped under one folder id.
func (f *FileStore) ListFolder(folderID string) ([]models.FileRecord, error) {
	all, err := f.ListAll()
	if err != nil {
		return nil, err
	}
	out := make([]models.FileRecord, 0, len(all))
	for _, rec := range all {
		if rec.FolderID == folderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Folders summarizes all folder ids present in the collection.
func (f *FileStore) Folders() ([]models.Folder, error) {
	all, err := f.ListAll()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Folder)
	for _, rec := range all {
		fo, ok := byID[rec.FolderID]
		if !ok {
			fo = &models.Folder{ID: rec.FolderID, Name: rec.FolderID}
			byID[rec.FolderID] = fo
		}
		fo.FileCount++
		if rec.LastModified > fo.LastModified {
			fo.LastModified = rec.LastModified
		}
	}
	out := make([]models.Folder, 0, len(byID))
	for _, fo := range byID {
		out = append(out, *fo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
