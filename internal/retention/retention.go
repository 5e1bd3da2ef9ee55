// Package retention prunes mentions and finished runs past a cutoff.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Store is the subset of persistence retention needs.
type Store interface {
	CountMentionsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteMentionsBefore(ctx context.Context, before time.Time) (int64, error)
	CountRunsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Report summarizes what a cleanup would remove, or removed.
type Report struct {
	Cutoff    time.Time `json:"cutoff"`
	OlderThan int       `json:"older_than_days"`
	Mentions  int64     `json:"mentions"`
	Runs      int64     `json:"runs"`
}

// Service computes cutoffs from a default age in days.
type Service struct {
	store       Store
	clock       minutes.Clock
	defaultDays int
	logger      *zap.Logger
}

// New returns a Service. defaultDays must be positive.
func New(store Store, clock minutes.Clock, defaultDays int, logger *zap.Logger) (*Service, error) {
	if store == nil || clock == nil {
		return nil, fmt.Errorf("retention: store and clock are required: %w", minutes.ErrInvalid)
	}
	if defaultDays <= 0 {
		return nil, fmt.Errorf("retention: default days must be > 0: %w", minutes.ErrInvalid)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clock, defaultDays: defaultDays, logger: logger.Named("retention")}, nil
}

// Preview counts rows older than days (0 selects the default).
func (s *Service) Preview(ctx context.Context, days int) (Report, error) {
	report, err := s.report(days)
	if err != nil {
		return Report{}, err
	}
	if report.Mentions, err = s.store.CountMentionsBefore(ctx, report.Cutoff); err != nil {
		return Report{}, fmt.Errorf("count mentions: %w", err)
	}
	if report.Runs, err = s.store.CountRunsBefore(ctx, report.Cutoff); err != nil {
		return Report{}, fmt.Errorf("count runs: %w", err)
	}
	return report, nil
}

// Purge deletes rows older than days (0 selects the default).
func (s *Service) Purge(ctx context.Context, days int) (Report, error) {
	report, err := s.report(days)
	if err != nil {
		return Report{}, err
	}
	if report.Mentions, err = s.store.DeleteMentionsBefore(ctx, report.Cutoff); err != nil {
		return Report{}, fmt.Errorf("delete mentions: %w", err)
	}
	if report.Runs, err = s.store.DeleteRunsBefore(ctx, report.Cutoff); err != nil {
		return Report{}, fmt.Errorf("delete runs: %w", err)
	}
	s.logger.Info("retention purge",
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("mentions", report.Mentions),
		zap.Int64("runs", report.Runs),
	)
	return report, nil
}

func (s *Service) report(days int) (Report, error) {
	if days < 0 {
		return Report{}, fmt.Errorf("older_than_days must be >= 0: %w", minutes.ErrInvalid)
	}
	if days == 0 {
		days = s.defaultDays
	}
	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return Report{Cutoff: cutoff, OlderThan: days}, nil
}
