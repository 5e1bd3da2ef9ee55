// Package entity holds helpers shared by the named-entity extractors.
package entity

import (
	"context"
	"strings"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// None is an extractor that never finds entities.
type None struct{}

// Extract implements minutes.EntityExtractor.
func (None) Extract(context.Context, string) ([]minutes.Entity, error) {
	return nil, nil
}

// Filter keeps entities whose label is in labels (all when labels is empty),
// trims their text, and drops duplicate (text, label) pairs preserving order.
func Filter(found []minutes.Entity, labels []string) []minutes.Entity {
	allowed := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		allowed[strings.ToUpper(strings.TrimSpace(l))] = struct{}{}
	}
	seen := make(map[minutes.Entity]struct{}, len(found))
	out := make([]minutes.Entity, 0, len(found))
	for _, e := range found {
		e.Text = strings.Join(strings.Fields(e.Text), " ")
		e.Label = strings.ToUpper(strings.TrimSpace(e.Label))
		if e.Text == "" || e.Label == "" {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[e.Label]; !ok {
				continue
			}
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
