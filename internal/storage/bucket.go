// Package storage keeps uploaded profile photos in a filesystem bucket served under a public base URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/ids"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	opUpload = "storage.upload"

	// MaxObjectBytes caps a single upload.
	MaxObjectBytes = 5 << 20
)

var (
	errMissingFilesystem = errors.New("storage: filesystem required")
	errObjectTooLarge    = errors.New("object exceeds size limit")
	errEmptyObject       = errors.New("object is empty")
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
}

// BucketConfig wires a Bucket.
type BucketConfig struct {
	Filesystem    afero.Fs
	PublicBaseURL string
	IDProvider    ids.Provider
	Logger        *zap.Logger
}

// Bucket stores objects beneath "/<owner>/<object id><ext>" of its filesystem.
type Bucket struct {
	filesystem afero.Fs
	baseURL    string
	idProvider ids.Provider
	logger     *zap.Logger
}

// Object describes a stored upload.
type Object struct {
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
	Size      int64  `json:"size"`
}

// NewBucket constructs a Bucket. An OS-backed bucket is usually rooted with afero.NewBasePathFs.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	if cfg.Filesystem == nil {
		return nil, errMissingFilesystem
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bucket{
		filesystem: cfg.Filesystem,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// Upload writes content for owner under a fresh object name keeping the original extension.
func (b *Bucket) Upload(ctx context.Context, owner, filename string, content io.Reader) (Object, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || strings.ContainsAny(owner, "/\\") || owner == "." || owner == ".." {
		return Object{}, apperrors.InvalidRequest(opUpload, "invalid_owner", nil)
	}
	extension := strings.ToLower(path.Ext(filename))
	if _, ok := allowedExtensions[extension]; !ok {
		return Object{}, apperrors.InvalidRequest(opUpload, "unsupported_type", fmt.Errorf("extension %q", extension))
	}
	if err := ctx.Err(); err != nil {
		return Object{}, apperrors.Upstream(opUpload, "cancelled", err)
	}

	objectID, err := b.idProvider.NewID()
	if err != nil {
		return Object{}, b.fail("id_generation_failed", err)
	}
	key := path.Join(owner, objectID+extension)
	location := "/" + key

	if err := b.filesystem.MkdirAll("/"+owner, 0o755); err != nil {
		return Object{}, b.fail("mkdir_failed", err)
	}
	file, err := b.filesystem.Create(location)
	if err != nil {
		return Object{}, b.fail("create_failed", err)
	}
	written, copyErr := io.Copy(file, io.LimitReader(content, MaxObjectBytes+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = b.filesystem.Remove(location)
		return Object{}, b.fail("write_failed", copyErr)
	case closeErr != nil:
		_ = b.filesystem.Remove(location)
		return Object{}, b.fail("write_failed", closeErr)
	case written > MaxObjectBytes:
		_ = b.filesystem.Remove(location)
		return Object{}, apperrors.InvalidRequest(opUpload, "object_too_large", errObjectTooLarge)
	case written == 0:
		_ = b.filesystem.Remove(location)
		return Object{}, apperrors.InvalidRequest(opUpload, "empty_object", errEmptyObject)
	}

	return Object{Key: key, PublicURL: b.PublicURL(key), Size: written}, nil
}

// PublicURL maps an object key to the URL it is served from.
func (b *Bucket) PublicURL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}

// FileSystem exposes the bucket for read-only static serving.
func (b *Bucket) FileSystem() http.FileSystem {
	return afero.NewHttpFs(afero.NewReadOnlyFs(b.filesystem))
}

func (b *Bucket) fail(reason string, err error) error {
	b.logger.Error("bucket operation failed",
		zap.String("operation", opUpload),
		zap.String("reason", reason),
		zap.Error(err))
	return apperrors.Upstream(opUpload, reason, err)
}
