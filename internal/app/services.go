package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/document"
	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/internal/investigation"
	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/internal/photos"
	"github.com/falco-investigation/falco/internal/platform/cache"
	"github.com/falco-investigation/falco/report"
)

// Services bundles the domain services shared by the server and the worker.
type Services struct {
	Blobs     *blob.FSStore
	Reports   *investigation.Service
	Drafts    *investigation.Drafts
	Photos    *photos.Manager
	Profiles  *agency.Service
	Document  *document.Template
	Gotenberg *report.Client
	Pipeline  *export.Pipeline
	Exports   *export.Service
}

// NewServices builds the report, profile and export services. queue may be
// nil for processes that never enqueue exports.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, queue export.Enqueuer, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	blobs, err := blob.NewFSStore(cfg.BlobRoot, cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	tpl, err := document.NewTemplate()
	if err != nil {
		return nil, err
	}

	reports := investigation.NewService(investigation.NewRepository(pool), logger)
	drafts := investigation.NewDrafts(reports, investigation.StoreOptions{Delay: cfg.AutosaveDelay, Logger: logger})
	profileCache := cache.NewJSON(redisClient, "falco:profile", cfg.ProfileCacheTTL, logger)
	profiles := agency.NewService(agency.NewRepository(pool), profileCache, logger)

	gotenberg := report.NewClient(cfg.GotenbergURL)
	fetcher := export.NewFetcher(blobs, cfg.ExportImageProxyURL, &http.Client{Timeout: 30 * time.Second}).WithAllowedHosts(cfg.ProxyHosts())
	pipeline, err := export.NewPipeline(export.Config{
		Template:    tpl,
		Converter:   gotenberg,
		Fetcher:     fetcher,
		Metrics:     metrics,
		Logger:      logger,
		WorkDir:     cfg.ExportWorkDir,
		City:        cfg.City,
		Concurrency: cfg.ExportConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("build export pipeline: %w", err)
	}
	exports := export.NewService(export.ServiceConfig{
		Records:  export.NewRepository(pool),
		Queue:    queue,
		Reports:  reports,
		Profiles: profiles,
		Exporter: pipeline,
		Blobs:    blobs,
		Logger:   logger,
	})

	return &Services{
		Blobs:     blobs,
		Reports:   reports,
		Drafts:    drafts,
		Photos:    photos.NewManager(blobs, logger).WithMaxBytes(cfg.MaxUploadBytes()),
		Profiles:  profiles,
		Document:  tpl,
		Gotenberg: gotenberg,
		Pipeline:  pipeline,
		Exports:   exports,
	}, nil
}

// BlankReport renders an empty report with the default branding. It feeds
// the converter smoke test.
func (s *Services) BlankReport(city string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		doc := document.Build(investigation.Empty(), agency.None(), document.Options{City: city})
		return s.Document.Render(doc)
	}
}
