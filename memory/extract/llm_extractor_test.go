package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/memory/llm"
	"github.com/caihaoran-00/memchr/store"
)

type stubLLMClient struct {
	extractResp string
	extractErr  error
}

func (s *stubLLMClient) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return "", nil
}

func (s *stubLLMClient) Extract(ctx context.Context, req llm.ExtractRequest) (string, error) {
	return s.extractResp, s.extractErr
}

var _ llm.Client = (*stubLLMClient)(nil)

func TestLLMExtractorParsesWellFormedPayload(t *testing.T) {
	client := &stubLLMClient{extractResp: `{
		"summary": "the user talked about dinosaurs",
		"keywords": ["dinosaur", "museum"],
		"emotion": "curious",
		"importance": 0.7,
		"facts": [{"subject": "user", "predicate": "likes", "object": "dinosaurs", "confidence": 0.8}],
		"profile_delta": {"add_tags": ["dinosaur-fan"]}
	}`}
	extractor := &LLMExtractor{Client: client, Model: "gpt-4o-mini", SummaryMaxLen: 280}

	result, err := extractor.Extract(context.Background(), []store.Message{{Role: "user", Text: "I love dinosaurs"}}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "the user talked about dinosaurs", result.Summary)
	assert.Equal(t, "curious", result.Emotion)
	assert.Equal(t, 0.7, result.Importance)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "dinosaurs", result.Facts[0].Object)
	assert.Equal(t, []string{"dinosaur-fan"}, result.ProfileDelta.AddTags)
}

func TestLLMExtractorStripsMarkdownFence(t *testing.T) {
	client := &stubLLMClient{extractResp: "```json\n{\"summary\":\"hi\",\"keywords\":[],\"emotion\":\"neutral\",\"importance\":0.2,\"facts\":[],\"profile_delta\":{\"add_tags\":[]}}\n```"}
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 100}

	result, err := extractor.Extract(context.Background(), nil, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Summary)
}

func TestLLMExtractorDefaultsInvalidEmotionToNeutral(t *testing.T) {
	client := &stubLLMClient{extractResp: `{"summary":"x","keywords":[],"emotion":"ecstatic","importance":0.5,"facts":[],"profile_delta":{"add_tags":[]}}`}
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 100}

	result, err := extractor.Extract(context.Background(), nil, "user-3")
	require.NoError(t, err)
	assert.Equal(t, "neutral", result.Emotion)
}

func TestLLMExtractorFallsBackOnMalformedJSON(t *testing.T) {
	client := &stubLLMClient{extractResp: "not json at all"}
	fallback := NewRuleExtractor(280, "en")
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 280, Fallback: fallback}

	messages := []store.Message{{Role: "user", Text: "my name is Sam"}}
	result, err := extractor.Extract(context.Background(), messages, "user-4")
	require.NoError(t, err)
	require.NotNil(t, result.ProfileDelta.Name)
	assert.Equal(t, "Sam", *result.ProfileDelta.Name)
}

func TestLLMExtractorFallsBackOnSchemaError(t *testing.T) {
	client := &stubLLMClient{extractErr: apperr.SchemaError(assert.AnError)}
	fallback := NewRuleExtractor(280, "en")
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 280, Fallback: fallback}

	result, err := extractor.Extract(context.Background(), []store.Message{{Role: "user", Text: "hello there"}}, "user-5")
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestLLMExtractorPropagatesNonSchemaErrorWithoutFallback(t *testing.T) {
	client := &stubLLMClient{extractErr: apperr.TransientLLMError(assert.AnError)}
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 280, Fallback: NewRuleExtractor(280, "en")}

	_, err := extractor.Extract(context.Background(), nil, "user-6")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransientLLMError))
}

func TestLLMExtractorTruncatesOverLongSummary(t *testing.T) {
	longSummary := strings.Repeat("a", 50)
	client := &stubLLMClient{extractResp: `{
		"summary": "` + longSummary + `",
		"keywords": [],
		"emotion": "neutral",
		"importance": 0.3,
		"facts": [],
		"profile_delta": {"add_tags": []}
	}`}
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 10}

	result, err := extractor.Extract(context.Background(), nil, "user-8")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10)+"...", result.Summary)
	assert.LessOrEqual(t, len([]rune(result.Summary)), 13)
}

func TestLLMExtractorDropsIncompleteFacts(t *testing.T) {
	client := &stubLLMClient{extractResp: `{
		"summary": "x",
		"keywords": [],
		"emotion": "neutral",
		"importance": 0.3,
		"facts": [{"subject": "user", "predicate": "", "object": "tea", "confidence": 0.5}],
		"profile_delta": {"add_tags": []}
	}`}
	extractor := &LLMExtractor{Client: client, SummaryMaxLen: 280}

	result, err := extractor.Extract(context.Background(), nil, "user-7")
	require.NoError(t, err)
	assert.Empty(t, result.Facts)
}
