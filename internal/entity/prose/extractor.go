// Package prose extracts named entities with the jdkato/prose local model.
package prose

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/JakeFAU/minuteswatch/internal/entity"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Extractor implements minutes.EntityExtractor.
type Extractor struct {
	labels []string
}

// New returns an Extractor that keeps only the given labels.
func New(labels []string) *Extractor {
	return &Extractor{labels: labels}
}

// Extract tags text and returns its named entities.
func (e *Extractor) Extract(ctx context.Context, text string) ([]minutes.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("prose extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}
	ents := doc.Entities()
	found := make([]minutes.Entity, 0, len(ents))
	for _, ent := range ents {
		found = append(found, minutes.Entity{Text: ent.Text, Label: ent.Label})
	}
	return entity.Filter(found, e.labels), nil
}
