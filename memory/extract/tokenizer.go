package extract

import (
	"sort"
	"strings"
	"unicode"
)

// stopwordsByLang is the closed per-language stopword set consulted by
// TopKeywords. Unrecognized languages fall back to the "en" list, since most
// untagged deployments speak some variant of English tooling text.
var stopwordsByLang = map[string]map[string]bool{
	"en": setOf("the", "a", "an", "is", "are", "was", "were", "i", "you", "he", "she",
		"it", "we", "they", "to", "of", "in", "on", "at", "for", "and", "or", "but",
		"with", "my", "your", "his", "her", "its", "our", "their", "this", "that",
		"be", "have", "has", "had", "do", "does", "did", "not", "no", "so", "if"),
	"zh": setOf("的", "了", "是", "我", "你", "他", "她", "它", "们", "在", "和", "就",
		"也", "都", "而", "及", "与", "这", "那", "有", "没", "不", "很", "啊", "吧", "吗"),
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Tokenize splits text into lowercase tokens suitable for keyword frequency
// counting. English-like scripts split on word boundaries; CJK text
// (no spaces, no case) is tokenized per-rune, which approximates a
// dictionary tokenizer well enough to guarantee non-empty keyword output
// even for short CJK-only input.
func Tokenize(text, lang string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(unicode.ToLower(r)))
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// TopKeywords tokenizes text, drops stopwords and single-rune Latin noise,
// and returns the top n tokens by frequency, ties broken by first
// occurrence to keep the result deterministic.
func TopKeywords(text, lang string, n int) []string {
	stop := stopwordsByLang[lang]
	if stop == nil {
		stop = stopwordsByLang["en"]
	}

	counts := make(map[string]int)
	order := make(map[string]int)
	for i, tok := range Tokenize(text, lang) {
		if stop[tok] || tok == "" {
			continue
		}
		if len([]rune(tok)) == 1 && tok[0] < 0x80 {
			continue // single-ASCII-char noise, not a real keyword
		}
		if _, seen := order[tok]; !seen {
			order[tok] = i
		}
		counts[tok]++
	}

	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return order[keywords[i]] < order[keywords[j]]
	})

	if n > 0 && len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}
