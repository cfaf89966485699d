package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFSStoreRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	obj, err := store.Put(ctx, BucketReportPhotos, "123-abc.jpg", strings.NewReader("jpeg-bytes"), "")
	require.NoError(t, err)
	require.Equal(t, int64(10), obj.Size)
	require.Equal(t, "image/jpeg", obj.ContentType)

	rc, info, err := store.Open(ctx, BucketReportPhotos, "123-abc.jpg")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(body))
	require.Equal(t, int64(10), info.Size)

	require.NoError(t, store.Delete(ctx, BucketReportPhotos, "123-abc.jpg"))
	require.ErrorIs(t, store.Delete(ctx, BucketReportPhotos, "123-abc.jpg"), ErrNotFound)
	_, _, err = store.Open(ctx, BucketReportPhotos, "123-abc.jpg")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for _, p := range []string{"../secret", "a/../../b", "/etc/passwd", "", ".", "a\\b"} {
		_, err := store.Put(ctx, BucketReportPhotos, p, strings.NewReader("x"), "")
		require.ErrorIs(t, err, ErrInvalidPath, p)
	}
	_, err := store.Put(ctx, "other", "a.jpg", strings.NewReader("x"), "")
	require.ErrorIs(t, err, ErrUnknownBucket)
}

func TestPublicURLRoundTrip(t *testing.T) {
	store := newStore(t)
	url := store.PublicURL(BucketReportPhotos, "1700000000000-xyz.png")
	require.Equal(t, "http://localhost:8080/files/report-photos/1700000000000-xyz.png", url)
	require.True(t, store.Owns(url))
	require.False(t, store.Owns("https://example.com/files/report-photos/a.png"))

	p, ok := store.ObjectPath(BucketReportPhotos, url)
	require.True(t, ok)
	require.Equal(t, "1700000000000-xyz.png", p)
}

func TestObjectPathFromURL(t *testing.T) {
	p, ok := ObjectPathFromURL(BucketReportPhotos, "https://cdn.example/storage/v1/object/public/report-photos/1-2.jpg?token=x")
	require.True(t, ok)
	require.Equal(t, "1-2.jpg", p)

	_, ok = ObjectPathFromURL(BucketReportPhotos, "https://cdn.example/agency-logos/1.png")
	require.False(t, ok)
	_, ok = ObjectPathFromURL(BucketReportPhotos, "https://cdn.example/report-photos/")
	require.False(t, ok)
}

func TestObjectNameIsUniquePerCall(t *testing.T) {
	a := ObjectName("1700000000000", ".JPG")
	b := ObjectName("1700000000000", "jpg")
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "1700000000000-"))
	require.True(t, strings.HasSuffix(a, ".jpg"))
	require.False(t, strings.Contains(ObjectName("x", ""), "."))
}

func TestFSStoreKeepsStoredContentType(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Put(ctx, BucketAgencyLogos, "7-logo.bin", strings.NewReader("GIF89a"), "image/gif")
	require.NoError(t, err)

	rc, info, err := store.Open(ctx, BucketAgencyLogos, "7-logo.bin")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "image/gif", info.ContentType)
	require.Equal(t, int64(6), info.Size)
}

func TestNewFSStoreDropsFilesSuffix(t *testing.T) {
	for _, base := range []string{"http://localhost:8080", "http://localhost:8080/", "http://localhost:8080/files", "http://localhost:8080/files/"} {
		store, err := NewFSStore(t.TempDir(), base)
		require.NoError(t, err)
		require.Equal(t, "http://localhost:8080/files/report-photos/a.png", store.PublicURL(BucketReportPhotos, "a.png"), base)
		require.NoError(t, store.Close())
	}
}
