// Package server exposes the sync core over HTTP.
package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nxsync/internal/auth"
)

// NewRouter assembles the gin engine. requireAuth gates the file and sync
// routes behind Bearer tokens; pairing, auth and health stay open either way.
func NewRouter(h *Handler, authSvc *auth.Service, requireAuth bool, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/health", h.Health)
	r.GET("/settings", h.Settings)

	r.POST("/api/pairing/generate", h.GeneratePairing)
	r.POST("/api/pairing/verify", h.VerifyPairing)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authed := r.Group("/")
	authed.Use(Auth(authSvc, requireAuth))
	{
		authed.GET("/files", h.ListFiles)
		authed.POST("/files/upload", h.Upload)
		authed.GET("/files/download/:id", h.Download)
		authed.DELETE("/files/:id", h.DeleteFile)
		authed.GET("/folders", h.ListFolders)
		authed.GET("/folders/:folderId/files", h.ListFolderFiles)
		authed.POST("/sync/folder", h.SyncFolder)
	}
	return r
}
