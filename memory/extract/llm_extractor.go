package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/internal/strutil"
	"github.com/caihaoran-00/memchr/memory/llm"
	"github.com/caihaoran-00/memchr/store"
)

// LLMExtractor asks the configured LLM client for the full ExtractionResult
// structure in one call. On a SchemaError from the client or a response
// that does not parse, it hands the session to Fallback (the RuleExtractor
// the Manager wires in) without retrying; with no Fallback set, an
// unparseable response is returned as apperr.SchemaError.
type LLMExtractor struct {
	Client        llm.Client
	Model         string
	SummaryMaxLen int
	Fallback      Extractor
}

var _ Extractor = (*LLMExtractor)(nil)

const extractionPromptTemplate = `You are extracting structured memory from a conversation. Given the user messages below, respond with a single JSON object matching exactly this shape:
{
  "summary": string, at most %d characters,
  "keywords": array of strings,
  "emotion": one of "happy","sad","neutral","scared","angry","curious",
  "importance": number in [0,1],
  "facts": array of {"subject","predicate","object","confidence"},
  "profile_delta": {"name"?, "age"?, "gender"?, "add_tags": array of strings}
}
Respond with JSON only, no prose, no markdown fences.

Conversation:
%s`

type llmExtractionPayload struct {
	Summary    string  `json:"summary"`
	Keywords   []string `json:"keywords"`
	Emotion    string  `json:"emotion"`
	Importance float64 `json:"importance"`
	Facts      []struct {
		Subject    string  `json:"subject"`
		Predicate  string  `json:"predicate"`
		Object     string  `json:"object"`
		Confidence float64 `json:"confidence"`
	} `json:"facts"`
	ProfileDelta struct {
		Name    *string  `json:"name"`
		Age     *int     `json:"age"`
		Gender  *string  `json:"gender"`
		AddTags []string `json:"add_tags"`
	} `json:"profile_delta"`
}

func (e *LLMExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*Result, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, e.SummaryMaxLen, renderTranscript(messages))

	raw, err := e.Client.Extract(ctx, llm.ExtractRequest{
		Prompt:      prompt,
		Schema:      llm.ExtractionSchema(),
		Model:       e.Model,
		Temperature: 0.2,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindSchemaError) && e.Fallback != nil {
			return e.Fallback.Extract(ctx, messages, userID)
		}
		return nil, err
	}

	payload, parseErr := parseExtractionPayload(raw, e.SummaryMaxLen)
	if parseErr != nil {
		if e.Fallback != nil {
			return e.Fallback.Extract(ctx, messages, userID)
		}
		return nil, apperr.SchemaError(parseErr)
	}
	return payload, nil
}

func parseExtractionPayload(raw string, summaryMaxLen int) (*Result, error) {
	raw = stripMarkdownFence(raw)

	var p llmExtractionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	if !isValidEmotion(p.Emotion) {
		p.Emotion = "neutral"
	}
	p.Summary = strutil.Truncate(p.Summary, summaryMaxLen)

	facts := make([]CandidateFact, 0, len(p.Facts))
	for _, f := range p.Facts {
		if f.Subject == "" || f.Predicate == "" || f.Object == "" {
			continue
		}
		facts = append(facts, CandidateFact{
			Subject:    f.Subject,
			Predicate:  f.Predicate,
			Object:     f.Object,
			Confidence: clipImportance(f.Confidence),
		})
	}

	return &Result{
		Summary:    p.Summary,
		Keywords:   p.Keywords,
		Emotion:    p.Emotion,
		Importance: clipImportance(p.Importance),
		Facts:      facts,
		ProfileDelta: ProfileDelta{
			Name:    p.ProfileDelta.Name,
			Age:     p.ProfileDelta.Age,
			Gender:  p.ProfileDelta.Gender,
			AddTags: p.ProfileDelta.AddTags,
		},
	}, nil
}

func isValidEmotion(e string) bool {
	for _, tag := range store.EmotionTags {
		if tag == e {
			return true
		}
	}
	return false
}

func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func renderTranscript(messages []store.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
