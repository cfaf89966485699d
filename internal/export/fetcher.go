package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/imageproxy"
)

// DefaultMaxAssetBytes caps a single fetched image.
const DefaultMaxAssetBytes int64 = 25 << 20

var (
	// ErrAssetTooLarge reports an image above the configured size cap.
	ErrAssetTooLarge = errors.New("export: asset too large")
	// ErrNotAnImage reports content that is not an image.
	ErrNotAnImage = errors.New("export: asset is not an image")
	// ErrHostNotAllowed reports a remote image outside the allowed hosts.
	ErrHostNotAllowed = errors.New("export: image host not allowed")
)

// Asset is a fetched image.
type Asset struct {
	Body        []byte
	ContentType string
}

// AssetFetcher resolves an image reference found in the document.
type AssetFetcher interface {
	Fetch(ctx context.Context, src string) (Asset, error)
}

// OwnedBlobs is the part of the blob store the fetcher reads from.
type OwnedBlobs interface {
	Owns(publicURL string) bool
	ObjectPath(bucket, publicURL string) (string, bool)
	Open(ctx context.Context, bucket, objectPath string) (io.ReadCloser, blob.Object, error)
}

// Fetcher loads data URIs inline, own blob URLs from the store and anything
// else over HTTP, optionally through the image proxy.
type Fetcher struct {
	blobs    OwnedBlobs
	client   *http.Client
	proxyURL string
	maxBytes int64
	allowed  imageproxy.AllowList
	// restricted is set once WithAllowedHosts ran; unset fetchers reach any host.
	restricted bool
}

// NewFetcher builds a fetcher. blobs and proxyURL are optional.
func NewFetcher(blobs OwnedBlobs, proxyURL string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{blobs: blobs, client: client, proxyURL: strings.TrimSpace(proxyURL), maxBytes: DefaultMaxAssetBytes}
}

// WithMaxBytes overrides the per-asset size cap.
func (f *Fetcher) WithMaxBytes(n int64) *Fetcher {
	if n > 0 {
		f.maxBytes = n
	}
	return f
}

// WithAllowedHosts limits remote fetches to the given hosts.
func (f *Fetcher) WithAllowedHosts(hosts []string) *Fetcher {
	f.allowed = imageproxy.NewAllowList(hosts)
	f.restricted = true
	return f
}

// Fetch implements AssetFetcher.
func (f *Fetcher) Fetch(ctx context.Context, src string) (Asset, error) {
	var (
		asset Asset
		err   error
	)
	switch {
	case strings.HasPrefix(src, "data:"):
		asset, err = decodeDataURI(src)
	case f.blobs != nil && f.blobs.Owns(src):
		asset, err = f.fetchBlob(ctx, src)
	default:
		asset, err = f.fetchHTTP(ctx, src)
	}
	if err != nil {
		return Asset{}, err
	}
	if int64(len(asset.Body)) > f.maxBytes {
		return Asset{}, ErrAssetTooLarge
	}
	asset.ContentType = imageType(asset.ContentType, asset.Body)
	if asset.ContentType == "" {
		return Asset{}, ErrNotAnImage
	}
	return asset, nil
}

func (f *Fetcher) fetchBlob(ctx context.Context, src string) (Asset, error) {
	for _, bucket := range blob.Buckets() {
		objectPath, ok := f.blobs.ObjectPath(bucket, src)
		if !ok {
			continue
		}
		rc, obj, err := f.blobs.Open(ctx, bucket, objectPath)
		if err != nil {
			return Asset{}, fmt.Errorf("export: open %s/%s: %w", bucket, objectPath, err)
		}
		defer rc.Close()
		body, err := f.readLimited(rc)
		if err != nil {
			return Asset{}, err
		}
		return Asset{Body: body, ContentType: obj.ContentType}, nil
	}
	return Asset{}, fmt.Errorf("export: %s: %w", src, blob.ErrInvalidPath)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src string) (Asset, error) {
	parsed, err := url.Parse(src)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Asset{}, fmt.Errorf("export: unsupported image address %q", src)
	}
	if f.restricted && !f.allowed.Allows(parsed) {
		return Asset{}, fmt.Errorf("export: %s: %w", parsed.Host, ErrHostNotAllowed)
	}
	target := src
	if f.proxyURL != "" {
		target = f.proxyURL + "?url=" + url.QueryEscape(src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Asset{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("export: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Asset{}, fmt.Errorf("export: fetch image: upstream status %d", resp.StatusCode)
	}
	body, err := f.readLimited(resp.Body)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("export: read image: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrAssetTooLarge
	}
	return body, nil
}

func decodeDataURI(src string) (Asset, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return Asset{}, errors.New("export: malformed data uri")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]
	isBase64 := strings.HasSuffix(meta, ";base64")
	mediaType := strings.TrimSuffix(meta, ";base64")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	var body []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Asset{}, fmt.Errorf("export: decode data uri: %w", err)
		}
		body = decoded
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return Asset{}, fmt.Errorf("export: decode data uri: %w", err)
		}
		body = []byte(decoded)
	}
	return Asset{Body: body, ContentType: mediaType}, nil
}

// imageType returns the declared image type, sniffing when it is missing or
// generic. An empty result means the body is not an image.
func imageType(declared string, body []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if declared != "" && declared != "application/octet-stream" {
		return ""
	}
	sniffed := http.DetectContentType(body)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/avif":
		return ".avif"
	default:
		return ".img"
	}
}
