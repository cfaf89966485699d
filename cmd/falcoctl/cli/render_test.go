package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/report"
)

const sampleReport = `{
  "clientInfo": {"fullName": "Maria Bianchi", "address": "Via Roma 1"},
  "investigatedInfo": {"fullName": "Paolo Verdi", "vehicles": []},
  "mandateDetails": {"assignmentDate": "2024-03-01", "investigationType": "Infedeltà coniugale"},
  "observationDays": [{"id": "d1", "date": "2024-03-04", "startTime": "08:00", "endTime": "12:00", "locations": [], "description": "Il soggetto esce di casa."}],
  "photos": [],
  "conclusions": {"text": "Nulla da segnalare."}
}`

type failingConverter struct{ calls int }

func (c *failingConverter) Convert(ctx context.Context, bundle report.Bundle, opts report.PageOptions) ([]byte, error) {
	c.calls++
	return nil, errors.New("gotenberg down")
}

type noFetch struct{}

func (noFetch) Fetch(ctx context.Context, src string) (export.Asset, error) {
	return export.Asset{}, errors.New("offline")
}

func TestRenderHTML(t *testing.T) {
	var out bytes.Buffer
	summary, err := Render(context.Background(), RenderOptions{
		Input:  strings.NewReader(sampleReport),
		Output: &out,
		City:   "Torino",
		Now:    time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, FormatHTML, summary.Format)
	require.Equal(t, out.Len(), summary.Bytes)

	doc, err := goquery.NewDocumentFromReader(&out)
	require.NoError(t, err)
	text := doc.Text()
	require.Contains(t, text, "Paolo Verdi")
	require.Contains(t, text, "Maria Bianchi")
	require.Contains(t, text, "Torino")
	require.Contains(t, text, "Nulla da segnalare.")
}

func TestRenderHTMLWithProfile(t *testing.T) {
	var out bytes.Buffer
	_, err := Render(context.Background(), RenderOptions{
		Input:   strings.NewReader(sampleReport),
		Profile: strings.NewReader(`{"first_name": "Luca", "last_name": "Neri", "agency_name": "Agenzia Neri"}`),
		Output:  &out,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "Agenzia Neri")
}

func TestRenderRejectsUnknownFields(t *testing.T) {
	var out bytes.Buffer
	_, err := Render(context.Background(), RenderOptions{
		Input:  strings.NewReader(`{"scrapbook": true}`),
		Output: &out,
	})
	require.Error(t, err)
	require.Zero(t, out.Len())
}

func TestRenderUnsupportedFormat(t *testing.T) {
	var out bytes.Buffer
	_, err := Render(context.Background(), RenderOptions{
		Input:  strings.NewReader(sampleReport),
		Output: &out,
		Format: "docx",
	})
	require.ErrorContains(t, err, "unsupported format")
}

func TestRenderPDFFailureWritesNothing(t *testing.T) {
	var out bytes.Buffer
	conv := &failingConverter{}
	_, err := Render(context.Background(), RenderOptions{
		Input:     strings.NewReader(sampleReport),
		Output:    &out,
		Format:    FormatPDF,
		WorkDir:   t.TempDir(),
		Converter: conv,
		Fetcher:   noFetch{},
	})
	require.ErrorIs(t, err, export.ErrExportFailed)
	require.Equal(t, 1, conv.calls)
	require.Zero(t, out.Len())
}

func TestRenderPDFRequiresConverter(t *testing.T) {
	var out bytes.Buffer
	_, err := Render(context.Background(), RenderOptions{
		Input:  strings.NewReader(sampleReport),
		Output: &out,
		Format: FormatPDF,
	})
	require.Error(t, err)
}
