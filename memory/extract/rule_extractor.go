package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/caihaoran-00/memchr/internal/strutil"
	"github.com/caihaoran-00/memchr/store"
)

// RuleExtractor is the deterministic extraction variant: no network call,
// no randomness, same input always yields the same Result. Used as the
// Manager's fallback whenever the LLM variant returns a SchemaError, and
// directly by the minimal preset.
type RuleExtractor struct {
	MaxKeywords        int
	SummaryMaxLen      int
	Language           string
}

// NewRuleExtractor builds a RuleExtractor with the fixed defaults named in
// the extraction contract: 8 keywords, language-agnostic otherwise.
func NewRuleExtractor(summaryMaxLen int, language string) *RuleExtractor {
	return &RuleExtractor{MaxKeywords: 8, SummaryMaxLen: summaryMaxLen, Language: language}
}

var _ Extractor = (*RuleExtractor)(nil)

// namePatterns match "I am called X" / "my name is X" style declarations.
// First match across all user messages wins.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-zA-Z\p{Han}]+)`),
	regexp.MustCompile(`(?i)\bi am called ([a-zA-Z\p{Han}]+)`),
	regexp.MustCompile(`我叫([\p{Han}a-zA-Z]+)`),
	regexp.MustCompile(`我的名字是([\p{Han}a-zA-Z]+)`),
}

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi am (\d{1,3}) years old`),
	regexp.MustCompile(`(?i)\bi'?m (\d{1,3})\b`),
	regexp.MustCompile(`我今年(\d{1,3})岁`),
	regexp.MustCompile(`我(\d{1,3})岁`),
}

var genderTokens = map[string]string{
	"i am a boy": "male", "i am a man": "male", "我是男生": "male", "我是男的": "male",
	"i am a girl": "female", "i am a woman": "female", "我是女生": "female", "我是女的": "female",
}

// preferenceVerbs is the closed verb set the "S <verb> O" pattern matches.
// Order matters: longer/more specific phrasings are tried first so
// "is afraid of" does not get shadowed by a looser match.
var preferenceVerbs = []struct {
	phrase    string
	predicate string
}{
	{"is afraid of", "is-afraid-of"},
	{"害怕", "is-afraid-of"},
	{"has a friend called", "has-friend-called"},
	{"我的朋友叫", "has-friend-called"},
	{"likes", "likes"},
	{"不喜欢", "hates"},
	{"喜欢", "likes"},
	{"hates", "hates"},
	{"讨厌", "hates"},
}

var emotionLexicon = map[string][]string{
	"happy":   {"happy", "glad", "joy", "excited", "开心", "高兴", "快乐", "兴奋"},
	"sad":     {"sad", "unhappy", "upset", "伤心", "难过", "悲伤"},
	"scared":  {"scared", "afraid", "fear", "害怕", "恐惧", "吓"},
	"angry":   {"angry", "mad", "furious", "生气", "愤怒", "气死"},
	"curious": {"curious", "wonder", "好奇", "想知道"},
}

func (r *RuleExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*Result, error) {
	userTexts := userMessageTexts(messages)
	joined := strings.Join(userTexts, " ")

	delta := extractProfileDelta(userTexts)
	facts, prefTags := extractPreferenceFacts(userTexts, delta.Name)
	delta.AddTags = append(delta.AddTags, prefTags...)

	summary := buildSummary(userTexts, r.SummaryMaxLen)
	keywords := TopKeywords(joined, r.Language, r.MaxKeywords)
	emotion := detectEmotion(joined)

	importance := 0.3
	importance += 0.1 * float64(len(facts))
	if !delta.isEmpty() {
		importance += 0.1
	}
	if emotion != "neutral" {
		importance += 0.1
	}

	return &Result{
		Summary:      summary,
		Keywords:     keywords,
		Emotion:      emotion,
		Importance:   clipImportance(importance),
		Facts:        facts,
		ProfileDelta: delta,
	}, nil
}

func (d ProfileDelta) isEmpty() bool {
	return d.Name == nil && d.Age == nil && d.Gender == nil && len(d.AddTags) == 0
}

func userMessageTexts(messages []store.Message) []string {
	var out []string
	for _, m := range messages {
		if m.Role == "user" {
			out = append(out, m.Text)
		}
	}
	return out
}

func extractProfileDelta(userTexts []string) ProfileDelta {
	var delta ProfileDelta
	for _, text := range userTexts {
		if delta.Name == nil {
			for _, pat := range namePatterns {
				if m := pat.FindStringSubmatch(text); len(m) == 2 {
					name := m[1]
					delta.Name = &name
					break
				}
			}
		}
		if delta.Age == nil {
			for _, pat := range agePatterns {
				if m := pat.FindStringSubmatch(text); len(m) == 2 {
					if age, err := strconv.Atoi(m[1]); err == nil {
						delta.Age = &age
						break
					}
				}
			}
		}
		if delta.Gender == nil {
			lower := strings.ToLower(text)
			for token, gender := range genderTokens {
				if strings.Contains(lower, token) {
					g := gender
					delta.Gender = &g
					break
				}
			}
		}
	}
	return delta
}

// extractPreferenceFacts matches "S <verb> O" phrases against the closed
// preference verb set. S defaults to the just-observed name, or "user".
func extractPreferenceFacts(userTexts []string, name *string) ([]CandidateFact, []string) {
	subject := "user"
	if name != nil {
		subject = *name
	}

	var facts []CandidateFact
	var tags []string
	for _, text := range userTexts {
		lower := strings.ToLower(text)
		var claimed [][2]int // byte spans of phrases already matched in this text
		for _, v := range preferenceVerbs {
			idx := strings.Index(lower, v.phrase)
			if idx < 0 {
				continue
			}
			shadowed := false
			for _, span := range claimed {
				if idx >= span[0] && idx < span[1] {
					shadowed = true
				}
			}
			if shadowed {
				continue
			}
			claimed = append(claimed, [2]int{idx, idx + len(v.phrase)})
			obj := strings.TrimSpace(text[idx+len(v.phrase):])
			obj = firstClause(obj)
			if obj == "" {
				continue
			}
			facts = append(facts, CandidateFact{
				Subject:    subject,
				Predicate:  v.predicate,
				Object:     obj,
				Confidence: 0.8,
			})
			tags = append(tags, v.predicate+" "+obj)
		}
	}
	return facts, tags
}

// firstClause trims an extracted object down to the first clause, so
// "pizza and also long walks" yields "pizza" rather than the whole tail.
func firstClause(s string) string {
	for _, sep := range []string{",", "，", ".", "。", " and ", "和", "but", "但"} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = s[:idx]
			break
		}
	}
	return strings.TrimSpace(s)
}

func buildSummary(userTexts []string, maxLen int) string {
	var sentences []string
	for _, text := range userTexts {
		if s := firstSentence(text); s != "" {
			sentences = append(sentences, s)
		}
	}
	joined := strings.Join(sentences, " ")
	return strutil.Truncate(joined, maxLen)
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	for _, marker := range []string{"。", "！", "？", ".", "!", "?"} {
		if idx := strings.Index(text, marker); idx >= 0 {
			return strings.TrimSpace(text[:idx+len(marker)])
		}
	}
	return text
}

func detectEmotion(text string) string {
	lower := strings.ToLower(text)
	for _, emotion := range store.EmotionTags {
		words, ok := emotionLexicon[emotion]
		if !ok {
			continue
		}
		for _, w := range words {
			if strings.Contains(lower, w) {
				return emotion
			}
		}
	}
	return "neutral"
}
