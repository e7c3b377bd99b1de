package syncer

import "nxsync/pkg/models"

// Reconcile selects the local files that need uploading: those with no
// record, or whose record's lastModified is strictly older than the file on
// disk. Equal timestamps never re-upload; that tie-break keeps a repeated
// full sync idempotent in the face of sub-millisecond or clock-skew changes.
//
// Records for files no longer present locally are left alone — deletion is a
// separate explicit operation, never a side effect of a sync.
func Reconcile(existing []models.FileRecord, local []LocalFile) []LocalFile {
	byPath := make(map[string]models.FileRecord, len(existing))
	for _, rec := range existing {
		byPath[rec.RelPath] = rec
	}

	var stale []LocalFile
	for _, file := range local {
		rec, ok := byPath[file.RelPath]
		if !ok || rec.LastModified < file.ModTime {
			stale = append(stale, file)
		}
	}
	return stale
}
