// Package scraper implements the fetch, extract, match, and persist pipeline
// that turns an archive of meeting-minutes PDFs into mentions.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/archive"
	"github.com/JakeFAU/minuteswatch/internal/match"
	"github.com/JakeFAU/minuteswatch/internal/metrics"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
	"github.com/JakeFAU/minuteswatch/internal/pdftext"
	"github.com/JakeFAU/minuteswatch/internal/telemetry"
)

// EventDocumentProcessed is published once per processed document.
const EventDocumentProcessed = "document.processed"

const (
	acceptHTML = "text/html,application/xhtml+xml"
	acceptPDF  = "application/pdf"

	finalUpdateTimeout = 10 * time.Second
)

// ErrNoKeywords fails a run before any download when nothing is configured.
var ErrNoKeywords = errors.New("no keywords configured")

// Config controls Pipeline behavior.
type Config struct {
	ArchiveURL       string
	BlobPrefix       string
	Topic            string
	MaxDocuments     int
	MaxPDFBytes      int64
	RespectRobots    bool
	FallbackKeywords []string
}

// RenderDetector flags index pages that need a headless re-fetch.
type RenderDetector interface {
	ShouldRender(resp minutes.FetchResponse) (bool, string)
}

// Deps are the collaborators a Pipeline needs. Sink, Publisher, Limiter,
// IndexFetcher, Renderer, Detector, and Entities are optional.
type Deps struct {
	Runs      minutes.RunStore
	Keywords  minutes.KeywordStore
	Documents minutes.DocumentStore
	Mentions  minutes.MentionStore
	Blobs     minutes.BlobStore
	Sink      minutes.MentionSink
	Publisher minutes.Publisher

	Fetcher      minutes.Fetcher
	IndexFetcher minutes.Fetcher
	// Renderer re-fetches an index that yielded no links when Detector
	// judges it client-rendered.
	Renderer minutes.Fetcher
	Detector RenderDetector
	Limiter  minutes.Limiter
	Text     minutes.TextExtractor
	Entities minutes.EntityExtractor
	Matcher  *match.Matcher

	Hasher minutes.Hasher
	Clock  minutes.Clock
	IDs    minutes.IDGenerator
}

// Pipeline executes scrape runs. It is not safe to call Run concurrently;
// the dispatcher serializes runs.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	required := []struct {
		name string
		ok   bool
	}{
		{"runs", deps.Runs != nil},
		{"keywords", deps.Keywords != nil},
		{"documents", deps.Documents != nil},
		{"mentions", deps.Mentions != nil},
		{"blobs", deps.Blobs != nil},
		{"fetcher", deps.Fetcher != nil},
		{"text", deps.Text != nil},
		{"hasher", deps.Hasher != nil},
		{"clock", deps.Clock != nil},
		{"ids", deps.IDs != nil},
	}
	var missing []string
	for _, r := range required {
		if !r.ok {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("scraper: missing dependencies %s: %w", strings.Join(missing, ", "), minutes.ErrInvalid)
	}
	if cfg.ArchiveURL == "" {
		return nil, fmt.Errorf("scraper: archive url is required: %w", minutes.ErrInvalid)
	}
	if deps.Matcher == nil {
		deps.Matcher = match.New(match.DefaultContextChars)
	}
	if deps.IndexFetcher == nil {
		deps.IndexFetcher = deps.Fetcher
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Named("scraper")}, nil
}

// Run executes one scrape run identified by runID, which must already exist
// in the run store. The returned error describes why the run failed; a run
// that completes with per-document failures still returns nil.
func (p *Pipeline) Run(ctx context.Context, runID string) (minutes.RunCounters, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "scraper.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	logger := p.logger.With(zap.String("run_id", runID))
	counters := minutes.RunCounters{}

	if err := p.deps.Runs.UpdateRun(ctx, runID, minutes.RunStatusRunning, "", counters); err != nil {
		logger.Error("mark run running failed", zap.Error(err))
		return counters, fmt.Errorf("mark run running: %w", err)
	}
	logger.Info("scrape run started", zap.String("archive_url", p.cfg.ArchiveURL))

	runErr := p.execute(ctx, logger, runID, &counters)
	status, errText := deriveFinalStatus(ctx, counters, runErr)

	// The run context may already be canceled; the final write must still land.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalUpdateTimeout)
	defer cancel()
	if err := p.deps.Runs.UpdateRun(finalCtx, runID, status, errText, counters); err != nil {
		logger.Error("final run status update failed", zap.Error(err))
	}
	metrics.ObserveRun(string(status))
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("run.mentions", counters.MentionsFound),
	)
	if status == minutes.RunStatusFailed {
		span.SetStatus(codes.Error, errText)
	}
	logger.Info("scrape run finished",
		zap.String("status", string(status)),
		zap.Int("documents_seen", counters.DocumentsSeen),
		zap.Int("documents_processed", counters.DocumentsProcessed),
		zap.Int("documents_skipped", counters.DocumentsSkipped),
		zap.Int("documents_failed", counters.DocumentsFailed),
		zap.Int("mentions_found", counters.MentionsFound),
	)

	if status == minutes.RunStatusFailed {
		return counters, errors.New(errText)
	}
	if status == minutes.RunStatusCanceled {
		return counters, ctx.Err()
	}
	return counters, nil
}

func (p *Pipeline) execute(ctx context.Context, logger *zap.Logger, runID string, counters *minutes.RunCounters) error {
	links, err := p.discover(ctx)
	if err != nil {
		logger.Error("archive index failed", zap.Error(err))
		return err
	}
	keywords, err := p.loadKeywords(ctx)
	if err != nil {
		logger.Error("load keywords failed", zap.Error(err))
		return err
	}
	logger.Info("archive parsed", zap.Int("documents", len(links)), zap.Int("keywords", len(keywords)))

	if p.cfg.MaxDocuments > 0 && len(links) > p.cfg.MaxDocuments {
		links = links[:p.cfg.MaxDocuments]
	}
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		counters.DocumentsSeen++
		outcome, mentions, err := p.processDocument(ctx, runID, link, keywords)
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-document; the run is reported as canceled.
			counters.DocumentsSeen--
			break
		}
		switch {
		case err != nil:
			counters.DocumentsFailed++
			metrics.ObserveDocument("failed")
			logger.Warn("document failed", zap.String("url", link.URL), zap.Error(err))
		case outcome == outcomeSkipped:
			counters.DocumentsSkipped++
			metrics.ObserveDocument("skipped")
			logger.Debug("document already processed", zap.String("url", link.URL))
		default:
			counters.DocumentsProcessed++
			counters.MentionsFound += mentions
			metrics.ObserveDocument("processed")
			metrics.ObserveMentions(mentions)
			logger.Info("document processed", zap.String("url", link.URL), zap.Int("mentions", mentions))
		}
	}
	return nil
}

// discover fetches the archive index and returns its PDF links in page order.
func (p *Pipeline) discover(ctx context.Context) ([]minutes.DocumentLink, error) {
	resp, links, err := p.fetchIndex(ctx, p.deps.IndexFetcher)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 || p.deps.Renderer == nil || p.deps.Detector == nil {
		return links, nil
	}
	render, reason := p.deps.Detector.ShouldRender(resp)
	if !render {
		return links, nil
	}
	p.logger.Info("archive index looks client-rendered; retrying headless",
		zap.String("url", p.cfg.ArchiveURL),
		zap.String("reason", reason),
	)
	_, links, err = p.fetchIndex(ctx, p.deps.Renderer)
	if err != nil {
		return nil, fmt.Errorf("headless index: %w", err)
	}
	return links, nil
}

func (p *Pipeline) fetchIndex(ctx context.Context, fetcher minutes.Fetcher) (minutes.FetchResponse, []minutes.DocumentLink, error) {
	if err := p.wait(ctx, p.cfg.ArchiveURL); err != nil {
		return minutes.FetchResponse{}, nil, err
	}
	resp, err := fetcher.Fetch(ctx, minutes.FetchRequest{
		URL:           p.cfg.ArchiveURL,
		Accept:        acceptHTML,
		RespectRobots: p.cfg.RespectRobots,
	})
	if err != nil {
		return minutes.FetchResponse{}, nil, fmt.Errorf("fetch archive index: %w", err)
	}
	base := resp.URL
	if base == "" {
		base = p.cfg.ArchiveURL
	}
	links, err := archive.Parse(resp.Body, base)
	if err != nil {
		return minutes.FetchResponse{}, nil, fmt.Errorf("parse archive index: %w", err)
	}
	return resp, links, nil
}

// loadKeywords returns the active stored keywords, or the configured fallback
// list when the store has none.
func (p *Pipeline) loadKeywords(ctx context.Context) ([]minutes.Keyword, error) {
	stored, err := p.deps.Keywords.ListKeywords(ctx, minutes.KeywordFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}
	var fallback []minutes.Keyword
	for _, term := range p.cfg.FallbackKeywords {
		if term = strings.TrimSpace(term); term != "" {
			fallback = append(fallback, minutes.Keyword{Term: term, Active: true})
		}
	}
	if len(fallback) == 0 {
		return nil, ErrNoKeywords
	}
	return fallback, nil
}

type docOutcome int

const (
	outcomeProcessed docOutcome = iota
	outcomeSkipped
)

func (p *Pipeline) processDocument(
	ctx context.Context,
	runID string,
	link minutes.DocumentLink,
	keywords []minutes.Keyword,
) (docOutcome, int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "scraper.document")
	defer span.End()
	span.SetAttributes(attribute.String("document.url", link.URL))

	body, err := p.download(ctx, link.URL)
	if err != nil {
		return outcomeProcessed, 0, err
	}

	hash, err := p.deps.Hasher.Hash(body)
	if err != nil {
		return outcomeProcessed, 0, fmt.Errorf("hash body: %w", err)
	}
	seen, err := p.deps.Documents.HasDocument(ctx, hash)
	if err != nil {
		return outcomeProcessed, 0, fmt.Errorf("check document: %w", err)
	}
	if seen {
		return outcomeSkipped, 0, nil
	}

	pages, err := p.deps.Text.Extract(body)
	if err != nil {
		if pages == nil {
			return outcomeProcessed, 0, fmt.Errorf("extract text: %w", err)
		}
		p.logger.Warn("some pages could not be extracted", zap.String("url", link.URL), zap.Error(err))
	}

	uri, err := p.deps.Blobs.PutObject(ctx, BlobPath(p.cfg.BlobPrefix, link.MeetingDate, hash), acceptPDF, bytes.NewReader(body))
	if err != nil {
		return outcomeProcessed, 0, fmt.Errorf("put object: %w", err)
	}

	now := p.deps.Clock.Now()
	doc := minutes.Document{
		Hash:        hash,
		URL:         link.URL,
		Title:       link.Title,
		MeetingDate: link.MeetingDate,
		PageCount:   len(pages),
		BlobURI:     uri,
		FetchedAt:   now,
	}

	mentions, err := p.buildMentions(ctx, runID, doc, p.deps.Matcher.Find(pages, keywords))
	if err != nil {
		return outcomeProcessed, 0, err
	}
	doc.MentionCount = len(mentions)

	if err := p.deps.Mentions.SaveMentions(ctx, mentions); err != nil {
		return outcomeProcessed, 0, fmt.Errorf("save mentions: %w", err)
	}
	if p.deps.Sink != nil {
		if _, err := p.deps.Sink.WriteMentions(ctx, doc, mentions); err != nil {
			return outcomeProcessed, 0, fmt.Errorf("write mention export: %w", err)
		}
	}
	if err := p.deps.Documents.SaveDocument(ctx, doc); err != nil {
		return outcomeProcessed, 0, fmt.Errorf("save document: %w", err)
	}
	if err := p.publish(ctx, runID, doc); err != nil {
		return outcomeProcessed, 0, err
	}
	return outcomeProcessed, len(mentions), nil
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	if err := p.wait(ctx, url); err != nil {
		return nil, err
	}
	resp, err := p.deps.Fetcher.Fetch(ctx, minutes.FetchRequest{
		URL:           url,
		Accept:        acceptPDF,
		RespectRobots: p.cfg.RespectRobots,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pdf: %w", err)
	}
	if p.cfg.MaxPDFBytes > 0 && int64(len(resp.Body)) > p.cfg.MaxPDFBytes {
		return nil, fmt.Errorf("pdf is %d bytes, limit %d", len(resp.Body), p.cfg.MaxPDFBytes)
	}
	if !pdftext.IsPDF(resp.Body) {
		return nil, pdftext.ErrNotPDF
	}
	return resp.Body, nil
}

func (p *Pipeline) buildMentions(
	ctx context.Context,
	runID string,
	doc minutes.Document,
	hits []match.Hit,
) ([]minutes.Mention, error) {
	mentions := make([]minutes.Mention, 0, len(hits))
	for _, hit := range hits {
		id, err := p.deps.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("mention id: %w", err)
		}
		mentions = append(mentions, minutes.Mention{
			ID:            id,
			RunID:         runID,
			DocumentHash:  doc.Hash,
			DocumentURL:   doc.URL,
			DocumentTitle: doc.Title,
			MeetingDate:   doc.MeetingDate,
			KeywordID:     hit.Keyword.ID,
			Keyword:       hit.Keyword.Term,
			Page:          hit.Page,
			Context:       hit.Context,
			Entities:      p.entities(ctx, doc.URL, hit.Context),
			FoundAt:       doc.FetchedAt,
		})
	}
	return mentions, nil
}

// entities never fails the document: a mention without entities is still a
// mention.
func (p *Pipeline) entities(ctx context.Context, url, text string) []minutes.Entity {
	if p.deps.Entities == nil || strings.TrimSpace(text) == "" {
		return []minutes.Entity{}
	}
	found, err := p.deps.Entities.Extract(ctx, text)
	if err != nil {
		p.logger.Warn("entity extraction failed", zap.String("url", url), zap.Error(err))
		return []minutes.Entity{}
	}
	if found == nil {
		return []minutes.Entity{}
	}
	return found
}

func (p *Pipeline) publish(ctx context.Context, runID string, doc minutes.Document) error {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"event":         EventDocumentProcessed,
		"run_id":        runID,
		"hash":          doc.Hash,
		"url":           doc.URL,
		"title":         doc.Title,
		"blob_uri":      doc.BlobURI,
		"page_count":    doc.PageCount,
		"mention_count": doc.MentionCount,
		"timestamp":     doc.FetchedAt.Format(time.RFC3339),
	}
	if doc.MeetingDate != nil {
		payload["meeting_date"] = doc.MeetingDate.Format(time.DateOnly)
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (p *Pipeline) wait(ctx context.Context, url string) error {
	if p.deps.Limiter == nil {
		return nil
	}
	return p.deps.Limiter.Wait(ctx, url)
}

// BlobPath returns <prefix>/<yyyy-mm-dd|undated>/<hash>.pdf.
func BlobPath(prefix string, meetingDate *time.Time, hash string) string {
	date := "undated"
	if meetingDate != nil {
		date = meetingDate.UTC().Format(time.DateOnly)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.pdf", date, hash)
	}
	return fmt.Sprintf("%s/%s/%s.pdf", prefix, date, hash)
}

func deriveFinalStatus(ctx context.Context, counters minutes.RunCounters, runErr error) (minutes.RunStatus, string) {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	switch {
	case ctx.Err() != nil:
		if errText == "" {
			errText = "run canceled"
		}
		return minutes.RunStatusCanceled, errText
	case runErr != nil:
		return minutes.RunStatusFailed, errText
	case counters.DocumentsProcessed == 0 && counters.DocumentsSkipped == 0:
		if counters.DocumentsSeen == 0 {
			return minutes.RunStatusFailed, "no documents found in archive"
		}
		return minutes.RunStatusFailed, "no documents were processed"
	default:
		return minutes.RunStatusSucceeded, ""
	}
}
