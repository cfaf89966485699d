package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/document"
	"github.com/falco-investigation/falco/internal/investigation"
	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/report"
)

const defaultSettleConcurrency = 4

// ErrExportFailed wraps every pipeline failure.
var ErrExportFailed = errors.New("export: pdf export failed")

// Converter turns an HTML bundle into a PDF.
type Converter interface {
	Convert(ctx context.Context, bundle report.Bundle, opts report.PageOptions) ([]byte, error)
}

// Result is a finished export.
type Result struct {
	PDF           []byte
	Filename      string
	Pages         int
	Text          string
	DroppedImages int
	Duration      time.Duration
}

// Config wires the pipeline.
type Config struct {
	Template    *document.Template
	Converter   Converter
	Fetcher     AssetFetcher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	WorkDir     string
	City        string
	Concurrency int
	Page        report.PageOptions
	Now         func() time.Time
	// OnStage observes every stage transition.
	OnStage func(Stage)
}

// Pipeline renders a report off-screen, waits for its images and converts it to PDF.
type Pipeline struct {
	template    *document.Template
	converter   Converter
	fetcher     AssetFetcher
	metrics     *observability.Metrics
	logger      *slog.Logger
	workDir     string
	city        string
	concurrency int
	page        report.PageOptions
	now         func() time.Time
	onStage     func(Stage)
}

// NewPipeline validates the configuration.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Template == nil || cfg.Converter == nil || cfg.Fetcher == nil {
		return nil, fmt.Errorf("export: template, converter and fetcher are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSettleConcurrency
	}
	if cfg.Page == (report.PageOptions{}) {
		cfg.Page = report.A4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		template:    cfg.Template,
		converter:   cfg.Converter,
		fetcher:     cfg.Fetcher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		workDir:     cfg.WorkDir,
		city:        cfg.City,
		concurrency: cfg.Concurrency,
		page:        cfg.Page,
		now:         cfg.Now,
		onStage:     cfg.OnStage,
	}, nil
}

// Export produces the PDF for data. Any failure aborts the whole run and no
// partial output is returned. The mount directory is always removed.
func (p *Pipeline) Export(ctx context.Context, data investigation.InvestigationData, profile agency.Optional) (Result, error) {
	started := p.now()
	res, err := p.run(ctx, data, profile)
	elapsed := time.Since(started)
	if err != nil {
		p.stage(StageFailed)
		p.metrics.ObserveExport(string(StageFailed), elapsed)
		p.logger.Error("export report", slog.Any("error", err))
		return Result{}, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	res.Duration = elapsed
	p.stage(StageDone)
	p.metrics.ObserveExport(string(StageDone), elapsed)
	p.logger.Info("report exported",
		slog.String("filename", res.Filename),
		slog.Int("pages", res.Pages),
		slog.Int("dropped_images", res.DroppedImages),
		slog.Duration("elapsed", elapsed))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, data investigation.InvestigationData, profile agency.Optional) (Result, error) {
	p.stage(StageMounting)
	mount, err := os.MkdirTemp(p.workDir, "export-*")
	if err != nil {
		return Result{}, fmt.Errorf("mount: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(mount); rmErr != nil {
			p.logger.Warn("remove export mount", slog.String("dir", mount), slog.Any("error", rmErr))
		}
	}()
	now := p.now()
	doc := document.Build(data, profile, document.Options{Now: now, City: p.city})

	p.stage(StageSettling)
	doc, assets, dropped, err := p.settle(ctx, doc, mount)
	if err != nil {
		return Result{}, fmt.Errorf("settle: %w", err)
	}
	p.metrics.AddImageFailures(dropped)

	p.stage(StageRasterizing)
	html, err := p.template.Render(doc)
	if err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}
	if err := os.WriteFile(filepath.Join(mount, "index.html"), html, 0o600); err != nil {
		return Result{}, fmt.Errorf("mount: %w", err)
	}
	pdf, err := p.converter.Convert(ctx, report.Bundle{HTML: html, Assets: assets}, p.page)
	if err != nil {
		return Result{}, fmt.Errorf("rasterize: %w", err)
	}

	p.stage(StageAssembling)
	info, err := Inspect(pdf)
	if err != nil {
		return Result{}, fmt.Errorf("assemble: %w", err)
	}
	return Result{
		PDF:           pdf,
		Filename:      Filename(data.SubjectName(), now),
		Pages:         info.Pages,
		Text:          info.Text,
		DroppedImages: dropped,
	}, nil
}

type settled struct {
	name string
	ok   bool
}

// settle fetches every distinct image concurrently and waits for all of them.
// Failed images are dropped from the document; only cancellation aborts.
func (p *Pipeline) settle(ctx context.Context, doc document.Document, mount string) (document.Document, []report.Asset, int, error) {
	sources := distinct(doc.Images())
	results := make([]settled, len(sources))
	bodies := make([][]byte, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			asset, err := p.fetcher.Fetch(gctx, src)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("export image dropped", slog.String("src", abbreviate(src)), slog.Any("error", err))
				return nil
			}
			name := fmt.Sprintf("asset-%03d%s", i+1, extensionFor(asset.ContentType))
			if err := os.WriteFile(filepath.Join(mount, name), asset.Body, 0o600); err != nil {
				return err
			}
			results[i] = settled{name: name, ok: true}
			bodies[i] = asset.Body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return document.Document{}, nil, 0, err
	}

	names := make(map[string]string, len(sources))
	assets := make([]report.Asset, 0, len(sources))
	dropped := 0
	for i, src := range sources {
		if !results[i].ok {
			dropped++
			continue
		}
		names[src] = results[i].name
		assets = append(assets, report.Asset{Name: results[i].name, Body: bodies[i]})
	}
	mapped := doc.MapImages(func(src string) string { return names[src] })
	return mapped, assets, dropped, nil
}

func (p *Pipeline) stage(s Stage) {
	p.logger.Debug("export stage", slog.String("stage", string(s)))
	if p.onStage != nil {
		p.onStage(s)
	}
}

func distinct(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func abbreviate(src string) string {
	if len(src) > 80 {
		return src[:80] + "..."
	}
	return src
}
