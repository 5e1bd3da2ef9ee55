package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

type fakeModels struct {
	reply    string
	err      error
	gotModel string
	gotText  string
	gotCfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotCfg = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotText = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestExtractParsesAndFilters(t *testing.T) {
	t.Parallel()

	models := &fakeModels{reply: `[{"text":"Jane Doe","label":"PERSON"},{"text":"Acme Corp","label":"ORG"},{"text":"Jane Doe","label":"PERSON"}]`}
	e := New(models, "", []string{"PERSON"})

	got, err := e.Extract(context.Background(), "Jane Doe of Acme Corp requested a variance.")
	require.NoError(t, err)
	assert.Equal(t, []minutes.Entity{{Text: "Jane Doe", Label: "PERSON"}}, got)
	assert.Equal(t, DefaultModel, models.gotModel)
	assert.Equal(t, "Jane Doe of Acme Corp requested a variance.", models.gotText)
	assert.Equal(t, "application/json", models.gotCfg.ResponseMIMEType)
}

func TestExtractBlankSkipsCall(t *testing.T) {
	t.Parallel()

	models := &fakeModels{err: errors.New("should not be called")}
	got, err := New(models, "gemini-test", nil).Extract(context.Background(), " ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, models.gotModel)
}

func TestExtractPropagatesErrors(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeModels{err: errors.New("quota")}, "", nil).Extract(context.Background(), "text")
	require.ErrorContains(t, err, "quota")

	_, err = New(&fakeModels{reply: "not json"}, "", nil).Extract(context.Background(), "text")
	require.ErrorContains(t, err, "decode gemini entities")
}

func TestParseEntitiesStripsFence(t *testing.T) {
	t.Parallel()

	got, err := ParseEntities("```json\n[{\"text\":\"Springfield\",\"label\":\"GPE\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, []minutes.Entity{{Text: "Springfield", Label: "GPE"}}, got)

	got, err = ParseEntities("   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}
