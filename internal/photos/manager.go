// Package photos manages the photo records of a report and their stored files.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/investigation"
)

var (
	ErrEmptyUpload = errors.New("photos: empty upload")
	ErrNotImage    = errors.New("photos: upload is not an image")
	ErrTooLarge    = errors.New("photos: upload too large")
)

// DefaultMaxUploadBytes caps a single photo upload.
const DefaultMaxUploadBytes = 20 << 20

// Upload is a photo file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Manager implements add, upload, update and remove for photo records.
type Manager struct {
	blobs    blob.Store
	logger   *slog.Logger
	maxBytes int64
}

// NewManager constructs a photo manager backed by blob storage.
func NewManager(blobs blob.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{blobs: blobs, logger: logger, maxBytes: DefaultMaxUploadBytes}
}

// WithMaxBytes overrides the upload size limit.
func (m *Manager) WithMaxBytes(n int64) *Manager {
	m.maxBytes = n
	return m
}

// AddPhoto appends an empty photo with a fresh id.
func (m *Manager) AddPhoto(store *investigation.Store) (investigation.Photo, error) {
	photo := investigation.Photo{ID: store.NextID()}
	_, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		list := append(cur.Photos, photo)
		return investigation.Partial{Photos: &list}, nil
	})
	if err != nil {
		return investigation.Photo{}, err
	}
	return photo, nil
}

// UpdatePhoto replaces the editable fields of one photo. The URL is kept.
func (m *Manager) UpdatePhoto(store *investigation.Store, photo investigation.Photo) (investigation.Photo, error) {
	var updated investigation.Photo
	_, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		idx := cur.FindPhoto(photo.ID)
		if idx < 0 {
			return investigation.Partial{}, investigation.ErrPhotoNotFound
		}
		photo.URL = cur.Photos[idx].URL
		cur.Photos[idx] = photo
		updated = photo
		return investigation.Partial{Photos: &cur.Photos}, nil
	})
	return updated, err
}

// UploadFile stores the file under "<photoID>-<random>.<ext>" and points the
// photo at its public URL. A previous file of the same photo is left in place.
func (m *Manager) UploadFile(ctx context.Context, store *investigation.Store, photoID string, up Upload) (investigation.Photo, error) {
	if store.Get().FindPhoto(photoID) < 0 {
		return investigation.Photo{}, investigation.ErrPhotoNotFound
	}
	if up.Body == nil {
		return investigation.Photo{}, ErrEmptyUpload
	}
	payload, err := io.ReadAll(io.LimitReader(up.Body, m.maxBytes+1))
	if err != nil {
		return investigation.Photo{}, fmt.Errorf("photos: read upload: %w", err)
	}
	if len(payload) == 0 {
		return investigation.Photo{}, ErrEmptyUpload
	}
	if int64(len(payload)) > m.maxBytes {
		return investigation.Photo{}, ErrTooLarge
	}
	contentType := http.DetectContentType(payload)
	if !strings.HasPrefix(contentType, "image/") {
		return investigation.Photo{}, ErrNotImage
	}

	name := blob.ObjectName(photoID, extensionFor(contentType))
	if _, err := m.blobs.Put(ctx, blob.BucketReportPhotos, name, bytes.NewReader(payload), contentType); err != nil {
		m.logger.Error("upload photo", slog.String("photo_id", photoID), slog.Any("error", err))
		return investigation.Photo{}, fmt.Errorf("photos: store upload: %w", err)
	}
	url := m.blobs.PublicURL(blob.BucketReportPhotos, name)

	var updated investigation.Photo
	_, err = store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		idx := cur.FindPhoto(photoID)
		if idx < 0 {
			return investigation.Partial{}, investigation.ErrPhotoNotFound
		}
		cur.Photos[idx].URL = url
		updated = cur.Photos[idx]
		return investigation.Partial{Photos: &cur.Photos}, nil
	})
	if err != nil {
		// photo removed while uploading
		if delErr := m.blobs.Delete(ctx, blob.BucketReportPhotos, name); delErr != nil {
			m.logger.Warn("discard orphan upload", slog.String("path", name), slog.Any("error", delErr))
		}
		return investigation.Photo{}, err
	}
	return updated, nil
}

// RemovePhoto deletes the stored file best-effort and always drops the record.
func (m *Manager) RemovePhoto(ctx context.Context, store *investigation.Store, photoID string) error {
	var removed investigation.Photo
	_, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		idx := cur.FindPhoto(photoID)
		if idx < 0 {
			return investigation.Partial{}, investigation.ErrPhotoNotFound
		}
		removed = cur.Photos[idx]
		list := append(cur.Photos[:idx:idx], cur.Photos[idx+1:]...)
		return investigation.Partial{Photos: &list}, nil
	})
	if err != nil {
		return err
	}
	if removed.URL == "" {
		return nil
	}
	objectPath, ok := m.blobs.ObjectPath(blob.BucketReportPhotos, removed.URL)
	if !ok {
		m.logger.Warn("photo url outside bucket", slog.String("photo_id", photoID), slog.String("url", removed.URL))
		return nil
	}
	if err := m.blobs.Delete(ctx, blob.BucketReportPhotos, objectPath); err != nil {
		m.logger.Warn("delete photo blob", slog.String("photo_id", photoID), slog.String("path", objectPath), slog.Any("error", err))
	}
	return nil
}

// extensionFor derives the stored extension from the sniffed type only; the
// client's filename never reaches the object name.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "bin"
	}
}
