package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nxsync/internal/auth"
	"nxsync/internal/metastore"
	"nxsync/internal/pairing"
	"nxsync/internal/storage"
	"nxsync/internal/syncer"
)

// Handler bundles the services behind the HTTP API.
type Handler struct {
	files    *syncer.FileStore
	backend  storage.Backend
	coord    *syncer.Coordinator
	pairing  *pairing.Service
	auth     *auth.Service
	provider string
	log      *logrus.Logger
}

// NewHandler wires the handler.
func NewHandler(files *syncer.FileStore, backend storage.Backend, coord *syncer.Coordinator, pairingSvc *pairing.Service, authSvc *auth.Service, provider string, log *logrus.Logger) *Handler {
	return &Handler{
		files:    files,
		backend:  backend,
		coord:    coord,
		pairing:  pairingSvc,
		auth:     authSvc,
		provider: provider,
		log:      log,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "provider": h.provider})
}

func (h *Handler) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"storageProvider": h.provider,
		"features": gin.H{
			"remoteStorage": h.provider == "minio",
			"localStorage":  h.provider == "local",
		},
	})
}

func (h *Handler) GeneratePairing(c *gin.Context) {
	code, err := h.pairing.Generate()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":      code.Code,
		"clientId":  code.ClientID,
		"expiresAt": code.ExpiresAt,
	})
}

func (h *Handler) VerifyPairing(c *gin.Context) {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pairing code required"})
		return
	}
	clientID, err := h.pairing.Verify(strings.TrimSpace(body.Code))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientId": clientID})
}

func (h *Handler) Register(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	user, err := h.auth.Register(body.Email, body.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	user, err := h.auth.Authenticate(body.Email, body.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) ListFiles(c *gin.Context) {
	records, err := h.files.ListAll()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file and relPath required"})
		return
	}
	relPath := strings.TrimSpace(c.PostForm("relPath"))
	if relPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file and relPath required"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	}

	rec, err := h.coord.Ingest(c.Request.Context(), syncer.IngestRequest{
		FolderID: c.PostForm("folderId"),
		RelPath:  relPath,
		// The server clock stands in when the producer sends no timestamp.
		LastModified: parseInt64Default(c.PostForm("lastModified"), time.Now().UnixMilli()),
		Hash:         strings.TrimSpace(c.PostForm("hash")),
		Size:         fh.Size,
		Body:         src,
		Cleanup:      func() { src.Close() },
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "storageKey": rec.StorageKey})
}

func (h *Handler) Download(c *gin.Context) {
	rec, err := h.files.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	rc, err := h.backend.Open(c.Request.Context(), rec.StorageKey)
	if err != nil {
		// A record pointing at missing bytes is a storage-side problem, not
		// an unknown id.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, rec.Size, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + rec.RelPath + `"`,
	})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	rec, err := h.files.DeleteByID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.backend.Delete(c.Request.Context(), rec.StorageKey); err != nil {
		h.log.WithField("storageKey", rec.StorageKey).WithError(err).Warn("storage delete failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) ListFolders(c *gin.Context) {
	folders, err := h.files.Folders()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (h *Handler) ListFolderFiles(c *gin.Context) {
	records, err := h.files.ListFolder(c.Param("folderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) SyncFolder(c *gin.Context) {
	var body struct {
		FolderPath string `json:"folderPath"`
		FolderID   string `json:"folderId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.FolderPath == "" || body.FolderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folderPath and folderId required"})
		return
	}
	result, err := h.coord.SyncFolder(c.Request.Context(), body.FolderPath, body.FolderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"syncedCount": result.Synced,
		"failed":      result.Failed,
	})
}

// writeError maps the error taxonomy to status codes: validation 400,
// not-found 404, expired pairing 410, auth 401/409, storage 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var serr *syncer.StorageError
	switch {
	case syncer.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, syncer.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
	case errors.Is(err, pairing.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid pairing code"})
	case errors.Is(err, pairing.ErrCodeExpired):
		c.JSON(http.StatusGone, gin.H{"error": "pairing code expired"})
	case errors.Is(err, metastore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, auth.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
	case errors.Is(err, auth.ErrBadCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.As(err, &serr):
		h.log.WithError(err).Error("storage failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
	default:
		h.log.WithError(err).Error("internal failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseInt64Default(v string, fallback int64) int64 {
	if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return i
	}
	return fallback
}
