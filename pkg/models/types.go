package models

// FileRecord is the metadata entry for one stored file. At most one active
// record exists per (FolderID, RelPath) pair; re-ingesting the same pair
// replaces the record wholesale.
type FileRecord struct {
	ID           string `json:"id"`
	FolderID     string `json:"folderId"`
	RelPath      string `json:"relPath"`
	LastModified int64  `json:"lastModified"` // milliseconds since epoch
	Hash         string `json:"hash,omitempty"`
	Size         int64  `json:"size"`
	StorageKey   string `json:"storageKey"`
	CreatedAt    int64  `json:"createdAt"`
}

// Key returns the metadata-store key for this record.
func (r FileRecord) Key() string {
	return FileKey(r.FolderID, r.RelPath)
}

// FileKey builds the collection key for a (folderID, relPath) pair. The NUL
// separator cannot appear in either component.
func FileKey(folderID, relPath string) string {
	return folderID + "\x00" + relPath
}

// PairingCode is an ephemeral single-use authorization token. The ClientID is
// assigned at generation time and handed out on successful verification.
type PairingCode struct {
	Code      string `json:"code"`
	ClientID  string `json:"clientId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// User is a registered account.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// Folder summarizes the files grouped under one folder identifier.
type Folder struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FileCount    int    `json:"fileCount"`
	LastModified int64  `json:"lastModified"`
}
