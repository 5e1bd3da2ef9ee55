// Package gemini extracts named entities by prompting a Gemini model.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/minuteswatch/internal/entity"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const systemPrompt = "You extract named entities from excerpts of municipal board meeting minutes. " +
	"Respond with a JSON array of objects with string fields \"text\" and \"label\". " +
	"Use the labels PERSON, ORG and GPE. Respond with [] when there are none."

// Generator is the subset of *genai.Models used by the extractor.
type Generator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

var _ minutes.EntityExtractor = (*Extractor)(nil)

// Extractor implements minutes.EntityExtractor with Gemini.
type Extractor struct {
	models Generator
	model  string
	labels []string
}

// NewClient builds a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// New returns an Extractor. Pass client.Models as models.
func New(models Generator, model string, labels []string) *Extractor {
	if model == "" {
		model = DefaultModel
	}
	return &Extractor{models: models, model: model, labels: labels}
}

// Extract asks the model for the entities in text.
func (e *Extractor) Extract(ctx context.Context, text string) ([]minutes.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	result, err := e.models.GenerateContent(ctx, e.model,
		[]*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: text}},
		}},
		BuildConfig(e.labels),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil {
		return nil, errors.New("gemini returned nil result")
	}
	found, err := ParseEntities(result.Text())
	if err != nil {
		return nil, err
	}
	return entity.Filter(found, e.labels), nil
}

// BuildConfig returns the GenerateContentConfig for extraction calls.
func BuildConfig(labels []string) *genai.GenerateContentConfig {
	temp := float32(0)
	prompt := systemPrompt
	if len(labels) > 0 {
		prompt += " Only return the labels " + strings.Join(labels, ", ") + "."
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
}

// ParseEntities decodes the model's JSON array, tolerating a Markdown fence.
func ParseEntities(raw string) ([]minutes.Entity, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var found []minutes.Entity
	if err := json.Unmarshal([]byte(raw), &found); err != nil {
		return nil, fmt.Errorf("decode gemini entities: %w", err)
	}
	return found, nil
}
