package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/document"
	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/internal/investigation"
)

const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// RenderOptions drive an offline render of a report JSON file.
type RenderOptions struct {
	Input   io.Reader
	Profile io.Reader
	Format  string
	Output  io.Writer
	City    string
	Now     time.Time
	WorkDir string
	// Converter and Fetcher are required for PDF output only.
	Converter export.Converter
	Fetcher   export.AssetFetcher
	Logger    *slog.Logger
}

// RenderSummary describes the produced file.
type RenderSummary struct {
	Format        string
	Filename      string
	Bytes         int
	Pages         int
	DroppedImages int
}

// Render decodes a report and writes it as HTML or PDF.
func Render(ctx context.Context, opts RenderOptions) (RenderSummary, error) {
	if opts.Input == nil || opts.Output == nil {
		return RenderSummary{}, errors.New("render: input and output are required")
	}
	data, err := decodeReport(opts.Input)
	if err != nil {
		return RenderSummary{}, err
	}
	profile, err := decodeProfile(opts.Profile)
	if err != nil {
		return RenderSummary{}, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	tpl, err := document.NewTemplate()
	if err != nil {
		return RenderSummary{}, err
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatHTML:
		doc := document.Build(data, profile, document.Options{Now: opts.Now, City: opts.City})
		body, err := tpl.Render(doc)
		if err != nil {
			return RenderSummary{}, err
		}
		if _, err := opts.Output.Write(body); err != nil {
			return RenderSummary{}, fmt.Errorf("render: write html: %w", err)
		}
		return RenderSummary{Format: FormatHTML, Bytes: len(body)}, nil
	case FormatPDF:
		pipeline, err := export.NewPipeline(export.Config{
			Template:  tpl,
			Converter: opts.Converter,
			Fetcher:   opts.Fetcher,
			Logger:    opts.Logger,
			WorkDir:   opts.WorkDir,
			City:      opts.City,
			Now:       func() time.Time { return opts.Now },
		})
		if err != nil {
			return RenderSummary{}, err
		}
		res, err := pipeline.Export(ctx, data, profile)
		if err != nil {
			return RenderSummary{}, err
		}
		if _, err := opts.Output.Write(res.PDF); err != nil {
			return RenderSummary{}, fmt.Errorf("render: write pdf: %w", err)
		}
		return RenderSummary{
			Format:        FormatPDF,
			Filename:      res.Filename,
			Bytes:         len(res.PDF),
			Pages:         res.Pages,
			DroppedImages: res.DroppedImages,
		}, nil
	default:
		return RenderSummary{}, fmt.Errorf("render: unsupported format %q", opts.Format)
	}
}

func decodeReport(r io.Reader) (investigation.InvestigationData, error) {
	data := investigation.Empty()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return investigation.InvestigationData{}, fmt.Errorf("render: decode report: %w", err)
	}
	return data.Normalize(), nil
}

func decodeProfile(r io.Reader) (agency.Optional, error) {
	if r == nil {
		return agency.None(), nil
	}
	var p agency.Profile
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return agency.None(), fmt.Errorf("render: decode profile: %w", err)
	}
	return agency.Some(p), nil
}
