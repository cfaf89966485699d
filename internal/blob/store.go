// Package blob stores report photos, agency logos and exported PDFs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	gcblob "gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// Bucket names.
const (
	BucketReportPhotos  = "report-photos"
	BucketAgencyLogos   = "agency-logos"
	BucketReportExports = "report-exports"
)

var (
	ErrNotFound      = errors.New("blob: object not found")
	ErrInvalidPath   = errors.New("blob: invalid object path")
	ErrUnknownBucket = errors.New("blob: unknown bucket")
)

// Object describes a stored blob.
type Object struct {
	Bucket      string
	Path        string
	ContentType string
	Size        int64
}

// Store is the blob storage contract.
type Store interface {
	Put(ctx context.Context, bucket, objectPath string, body io.Reader, contentType string) (Object, error)
	Open(ctx context.Context, bucket, objectPath string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, bucket, objectPath string) error
	PublicURL(bucket, objectPath string) string
	ObjectPath(bucket, publicURL string) (string, bool)
}

// Buckets lists every known bucket.
func Buckets() []string {
	return []string{BucketReportPhotos, BucketAgencyLogos, BucketReportExports}
}

// IsPublic reports whether a bucket may be served without a session.
func IsPublic(bucket string) bool {
	return bucket == BucketReportPhotos || bucket == BucketAgencyLogos
}

// ObjectName builds "<prefix>-<random>.<ext>". Uploads for the same prefix
// never collide.
func ObjectName(prefix, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := prefix + "-" + uuid.NewString()
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// ObjectPathFromURL extracts the object path following "/<bucket>/" in a public URL.
func ObjectPathFromURL(bucket, publicURL string) (string, bool) {
	marker := "/" + bucket + "/"
	idx := strings.Index(publicURL, marker)
	if idx < 0 {
		return "", false
	}
	rest := publicURL[idx+len(marker):]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// FSStore keeps blobs on the local filesystem through the gocloud fileblob
// driver, one bucket directory per bucket. Content types are persisted in the
// driver's attribute sidecars.
type FSStore struct {
	baseURL string
	buckets map[string]*gcblob.Bucket
}

// NewFSStore opens the bucket directories under root. A trailing "/files" on
// publicBaseURL is dropped since PublicURL appends it.
func NewFSStore(root, publicBaseURL string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: root directory required")
	}
	store := &FSStore{baseURL: normaliseBaseURL(publicBaseURL), buckets: make(map[string]*gcblob.Bucket)}
	for _, name := range Buckets() {
		bucket, err := fileblob.OpenBucket(filepath.Join(root, name), &fileblob.Options{CreateDir: true, NoTempDir: true})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("blob: open bucket %s: %w", name, err)
		}
		store.buckets[name] = bucket
	}
	return store, nil
}

func normaliseBaseURL(raw string) string {
	base := strings.TrimRight(raw, "/")
	base = strings.TrimSuffix(base, "/files")
	return strings.TrimRight(base, "/")
}

// Close releases the bucket handles.
func (s *FSStore) Close() error {
	var errs []error
	for _, bucket := range s.buckets {
		errs = append(errs, bucket.Close())
	}
	return errors.Join(errs...)
}

func (s *FSStore) resolve(bucket, objectPath string) (*gcblob.Bucket, error) {
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, ErrUnknownBucket
	}
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return nil, ErrInvalidPath
	}
	clean := path.Clean(objectPath)
	if clean != objectPath || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return nil, ErrInvalidPath
	}
	return b, nil
}

// Put writes the body; the driver commits it atomically on Close.
func (s *FSStore) Put(ctx context.Context, bucket, objectPath string, body io.Reader, contentType string) (Object, error) {
	b, err := s.resolve(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = contentTypeFor(objectPath)
	}
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := b.NewWriter(writeCtx, objectPath, &gcblob.WriterOptions{ContentType: contentType})
	if err != nil {
		return Object{}, fmt.Errorf("blob: open writer: %w", err)
	}
	size, err := io.Copy(w, body)
	if err != nil {
		// cancelling before Close discards the partial object
		cancel()
		_ = w.Close()
		return Object{}, fmt.Errorf("blob: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("blob: commit object: %w", err)
	}
	return Object{Bucket: bucket, Path: objectPath, ContentType: contentType, Size: size}, nil
}

// Open returns a reader for the object.
func (s *FSStore) Open(ctx context.Context, bucket, objectPath string) (io.ReadCloser, Object, error) {
	b, err := s.resolve(bucket, objectPath)
	if err != nil {
		return nil, Object{}, err
	}
	r, err := b.NewReader(ctx, objectPath, nil)
	if err != nil {
		return nil, Object{}, mapError(err)
	}
	contentType := r.ContentType()
	if contentType == "" {
		contentType = contentTypeFor(objectPath)
	}
	return r, Object{Bucket: bucket, Path: objectPath, ContentType: contentType, Size: r.Size()}, nil
}

// Delete removes the object. Missing objects report ErrNotFound.
func (s *FSStore) Delete(ctx context.Context, bucket, objectPath string) error {
	b, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	return mapError(b.Delete(ctx, objectPath))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrNotFound
	}
	return err
}

// PublicURL returns the address the file handler serves the object under.
func (s *FSStore) PublicURL(bucket, objectPath string) string {
	return s.baseURL + "/files/" + bucket + "/" + objectPath
}

// ObjectPath maps a public URL produced by this store back to its object path.
func (s *FSStore) ObjectPath(bucket, publicURL string) (string, bool) {
	return ObjectPathFromURL(bucket, publicURL)
}

// Owns reports whether the URL was issued by this store.
func (s *FSStore) Owns(publicURL string) bool {
	return s.baseURL != "" && strings.HasPrefix(publicURL, s.baseURL+"/files/")
}

func contentTypeFor(objectPath string) string {
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
