package cmd

import (
	"context"
	"errors"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/clock/system"
	"github.com/JakeFAU/minuteswatch/internal/config"
	"github.com/JakeFAU/minuteswatch/internal/entity"
	"github.com/JakeFAU/minuteswatch/internal/entity/gemini"
	"github.com/JakeFAU/minuteswatch/internal/entity/prose"
	collyfetcher "github.com/JakeFAU/minuteswatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/minuteswatch/internal/fetcher/headless"
	"github.com/JakeFAU/minuteswatch/internal/hash/sha256"
	"github.com/JakeFAU/minuteswatch/internal/headless/detector"
	"github.com/JakeFAU/minuteswatch/internal/id/uuid"
	"github.com/JakeFAU/minuteswatch/internal/match"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
	"github.com/JakeFAU/minuteswatch/internal/pdftext"
	"github.com/JakeFAU/minuteswatch/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/minuteswatch/internal/publisher/pubsub"
	"github.com/JakeFAU/minuteswatch/internal/retention"
	"github.com/JakeFAU/minuteswatch/internal/scraper"
	"github.com/JakeFAU/minuteswatch/internal/storage/csvfile"
	"github.com/JakeFAU/minuteswatch/internal/storage/gcs"
	"github.com/JakeFAU/minuteswatch/internal/storage/local"
	"github.com/JakeFAU/minuteswatch/internal/storage/memory"
	"github.com/JakeFAU/minuteswatch/internal/storage/postgres"
)

// services is the wired object graph shared by the subcommands.
type services struct {
	store     minutes.Store
	auth      *auth.Service
	retention *retention.Service
	pipeline  *scraper.Pipeline
	clock     minutes.Clock
	ids       minutes.IDGenerator

	closers []func()
	logger  *zap.Logger
}

// Close releases resources in reverse construction order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *services) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// buildServices wires stores and auth, and the scraper pipeline when
// withPipeline is set. The pipeline is left nil when scraper.archive_url is
// empty.
func buildServices(ctx context.Context, cfg config.Config, logger *zap.Logger, withPipeline bool) (*services, error) {
	svc := &services{clock: system.New(), ids: uuid.New(), logger: logger}
	if err := svc.buildCore(ctx, cfg); err != nil {
		svc.Close()
		return nil, err
	}
	if !withPipeline {
		return svc, nil
	}
	if cfg.Scraper.ArchiveURL == "" {
		logger.Warn("scraper.archive_url is empty; scraping is disabled")
		return svc, nil
	}
	if err := svc.buildPipeline(ctx, cfg); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *services) buildCore(ctx context.Context, cfg config.Config) error {
	if cfg.DB.DSN == "" {
		s.logger.Warn("db.dsn is empty; using the in-memory store")
		s.store = memory.NewStore()
	} else {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DBConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		s.onClose(pg.Close)
		s.store = pg
		s.logger.Info("postgres store initialized")
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
		TTL:    cfg.TokenTTL(),
	}, s.clock)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}
	if s.auth, err = auth.NewService(s.store, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens, s.logger); err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}
	if s.retention, err = retention.New(s.store, s.clock, cfg.Scraper.RetentionDays, s.logger); err != nil {
		return fmt.Errorf("init retention: %w", err)
	}
	return nil
}

func (s *services) buildPipeline(ctx context.Context, cfg config.Config) error {
	blobs, err := s.buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	entities, err := s.buildEntities(ctx, cfg)
	if err != nil {
		return err
	}

	deps := scraper.Deps{
		Runs:      s.store,
		Keywords:  s.store,
		Documents: s.store,
		Mentions:  s.store,
		Blobs:     blobs,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Scraper.UserAgent,
			Timeout:      cfg.RequestTimeout(),
			MaxBodyBytes: cfg.Scraper.MaxPDFBytes,
		}, s.logger),
		Limiter:  ratelimit.New(ratelimit.Config{RPS: cfg.Scraper.RequestsPerSecond, Burst: cfg.Scraper.Burst}),
		Text:     pdftext.New(),
		Entities: entities,
		Matcher:  match.New(cfg.Scraper.ContextChars),
		Hasher:   sha256.New(),
		Clock:    s.clock,
		IDs:      s.ids,
	}

	if cfg.Scraper.HeadlessIndex || cfg.Scraper.HeadlessFallback {
		headless := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: cfg.HeadlessTimeout(),
		}, s.logger)
		s.onClose(headless.Close)
		if cfg.Scraper.HeadlessIndex {
			deps.IndexFetcher = headless
			s.logger.Info("using headless index fetcher")
		} else {
			deps.Renderer = headless
			deps.Detector = detector.NewHeuristic(0)
			s.logger.Info("headless fallback enabled for client-rendered indexes")
		}
	}

	if cfg.Storage.ProcessedDir != "" {
		sink, err := csvfile.New(cfg.Storage.ProcessedDir)
		if err != nil {
			return fmt.Errorf("init csv sink: %w", err)
		}
		deps.Sink = sink
	}

	if cfg.PubSub.Topic != "" {
		client, err := pubsubpublisher.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return err
		}
		publisher := pubsubpublisher.New(client, s.logger)
		s.onClose(func() {
			if err := publisher.Close(); err != nil {
				s.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		deps.Publisher = publisher
		s.logger.Info("pubsub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
	}

	s.pipeline, err = scraper.New(deps, scraper.Config{
		ArchiveURL:       cfg.Scraper.ArchiveURL,
		BlobPrefix:       cfg.Storage.Prefix,
		Topic:            cfg.PubSub.Topic,
		MaxDocuments:     cfg.Scraper.MaxDocuments,
		MaxPDFBytes:      cfg.Scraper.MaxPDFBytes,
		RespectRobots:    cfg.Scraper.RespectRobots,
		FallbackKeywords: cfg.Scraper.Keywords,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	return nil
}

func (s *services) buildBlobStore(ctx context.Context, cfg config.Config) (minutes.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		s.onClose(func() {
			if err := client.Close(); err != nil {
				s.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		s.logger.Debug("GCS storage backend", zap.String("bucket", cfg.Storage.GCSBucket))
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, nil
	case "local":
		s.logger.Debug("local storage backend", zap.String("path", cfg.Storage.BaseDir))
		store, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("storage backend %q is not supported", cfg.Storage.Backend)
	}
}

func (s *services) buildEntities(ctx context.Context, cfg config.Config) (minutes.EntityExtractor, error) {
	switch cfg.Entities.Backend {
	case "prose":
		return prose.New(cfg.Entities.Labels), nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Entities.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return gemini.New(client.Models, cfg.Entities.GeminiModel, cfg.Entities.Labels), nil
	case "none":
		return entity.None{}, nil
	default:
		return nil, errors.New("entities backend " + cfg.Entities.Backend + " is not supported")
	}
}
