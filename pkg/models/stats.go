package models

// Stats represents upload journal statistics for a sync folder
type Stats struct {
	TotalFiles    int64
	TotalSize     int64
	UploadedFiles int64
	UploadedSize  int64
	PendingFiles  int64
	PendingSize   int64
	FailedFiles   int64
	FailedSize    int64
}
