package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrConversion wraps non-success replies from Gotenberg.
var ErrConversion = errors.New("report: pdf conversion failed")

// Asset is a file referenced by the HTML document, sent next to index.html.
type Asset struct {
	Name string
	Body []byte
}

// Bundle is the HTML document and every asset it references.
type Bundle struct {
	HTML   []byte
	Assets []Asset
}

// PageOptions configures the Chromium print step. Sizes are in inches.
type PageOptions struct {
	PaperWidth        float64
	PaperHeight       float64
	MarginTop         float64
	MarginBottom      float64
	MarginLeft        float64
	MarginRight       float64
	Scale             float64
	PreferCSSPageSize bool
	PrintBackground   bool
}

// A4 is the default report page.
var A4 = PageOptions{
	PaperWidth:        8.27,
	PaperHeight:       11.7,
	MarginTop:         0.59,
	MarginBottom:      0.59,
	MarginLeft:        0.59,
	MarginRight:       0.59,
	Scale:             1,
	PreferCSSPageSize: true,
	PrintBackground:   true,
}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// Convert posts index.html plus its assets to the Chromium route and returns the PDF.
func (c *Client) Convert(ctx context.Context, bundle Bundle, opts PageOptions) ([]byte, error) {
	if len(bundle.HTML) == 0 {
		return nil, fmt.Errorf("report: empty html document")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writeFile(writer, "index.html", bundle.HTML); err != nil {
		return nil, err
	}
	for _, asset := range bundle.Assets {
		name := path.Base(asset.Name)
		if name == "index.html" || name == "." || name == "/" {
			return nil, fmt.Errorf("report: invalid asset name %q", asset.Name)
		}
		if err := writeFile(writer, name, asset.Body); err != nil {
			return nil, err
		}
	}
	for key, value := range opts.fields() {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/forms/chromium/convert/html", c.baseURL), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrConversion, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return io.ReadAll(resp.Body)
}

func writeFile(writer *multipart.Writer, name string, content []byte) error {
	part, err := writer.CreateFormFile("files", name)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}

func (o PageOptions) fields() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	out := map[string]string{
		"preferCssPageSize": strconv.FormatBool(o.PreferCSSPageSize),
		"printBackground":   strconv.FormatBool(o.PrintBackground),
	}
	if o.PaperWidth > 0 {
		out["paperWidth"] = f(o.PaperWidth)
	}
	if o.PaperHeight > 0 {
		out["paperHeight"] = f(o.PaperHeight)
	}
	if o.Scale > 0 {
		out["scale"] = f(o.Scale)
	}
	out["marginTop"] = f(o.MarginTop)
	out["marginBottom"] = f(o.MarginBottom)
	out["marginLeft"] = f(o.MarginLeft)
	out["marginRight"] = f(o.MarginRight)
	return out
}
