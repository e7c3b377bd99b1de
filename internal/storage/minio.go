package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nxsync/internal/config"
	"nxsync/internal/metastore"
)

// objectMapCollection maps storage keys to provider-assigned object names.
const objectMapCollection = "storage_objects"

type objectRef struct {
	ObjectName string `json:"objectName"`
	CreatedAt  int64  `json:"createdAt"`
}

// Minio persists objects in a MinIO-compatible store. The client is built
// lazily on first use; the key-to-object-name mapping lives in the metadata
// store so overwrites reuse the provider object instead of leaking new ones.
type Minio struct {
	cfg  config.Minio
	meta *metastore.Store

	mu     sync.Mutex
	client *minio.Client
}

// NewMinio returns an unconnected backend; authentication and bucket checks
// happen on first Save/Open/Delete.
func NewMinio(cfg config.Minio, meta *metastore.Store) *Minio {
	return &Minio{cfg: cfg, meta: meta}
}

func (m *Minio) connect(ctx context.Context) (*minio.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(m.cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(m.cfg.AccessKey, m.cfg.SecretKey, ""),
		Secure:       m.cfg.Secure,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", m.cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
		}
	}

	m.client = client
	return client, nil
}

func (m *Minio) lookup(key string) (objectRef, error) {
	var ref objectRef
	err := m.meta.Get(objectMapCollection, key, &ref)
	return ref, err
}

// Save uploads the bytes, reusing the provider object behind a known key or
// creating a fresh one and recording the mapping after a confirmed write.
func (m *Minio) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}

	ref, err := m.lookup(key)
	isNew := errors.Is(err, metastore.ErrNotFound)
	if err != nil && !isNew {
		return err
	}
	if isNew {
		ref = objectRef{
			ObjectName: uuid.NewString(),
			CreatedAt:  time.Now().UnixMilli(),
		}
	}

	if _, err := client.PutObject(ctx, m.cfg.Bucket, ref.ObjectName, r, size, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("upload object %s: %w", key, err)
	}
	if isNew {
		// Mapping is written only after the object exists, so a record never
		// points at unconfirmed bytes.
		if err := m.meta.Upsert(objectMapCollection, key, ref); err != nil {
			return fmt.Errorf("record object mapping: %w", err)
		}
	}
	return nil
}

// Open streams the stored bytes for key.
func (m *Minio) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := m.lookup(key)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, m.cfg.Bucket, ref.ObjectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", key, err)
	}
	// GetObject is lazy; surface missing objects now rather than on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// Delete removes the remote object best-effort and always drops the mapping,
// so a failed remote delete cannot wedge the key.
func (m *Minio) Delete(ctx context.Context, key string) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	ref, err := m.lookup(key)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_ = client.RemoveObject(ctx, m.cfg.Bucket, ref.ObjectName, minio.RemoveObjectOptions{})
	if err := m.meta.Delete(objectMapCollection, key); err != nil && !errors.Is(err, metastore.ErrNotFound) {
		return err
	}
	return nil
}
