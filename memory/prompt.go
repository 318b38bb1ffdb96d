package memory

import (
	"fmt"
	"strings"

	"github.com/caihaoran-00/memchr/store"
)

// MemoryContext is the transient, per-query assembled value: a snapshot of
// everything the host application needs to ground a reply, plus its
// deterministic text rendering.
type MemoryContext struct {
	Profile       *store.UserProfile
	Facts         []store.Fact
	Episodes      []store.Episode
	WorkingSlice  []store.Message
}

// RenderPrompt is a pure function of the context: same input, same output,
// byte for byte. Three fixed labeled blocks, each omitted entirely when
// its source list is empty; leading/trailing whitespace trimmed.
func RenderPrompt(ctx MemoryContext) string {
	var blocks []string

	if b := renderProfileBlock(ctx.Profile); b != "" {
		blocks = append(blocks, b)
	}
	if b := renderFactsBlock(ctx.Facts); b != "" {
		blocks = append(blocks, b)
	}
	if b := renderEpisodesBlock(ctx.Episodes); b != "" {
		blocks = append(blocks, b)
	}

	return strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

func renderProfileBlock(p *store.UserProfile) string {
	if p == nil {
		return ""
	}
	var lines []string
	if p.Name != "" {
		lines = append(lines, "姓名: "+p.Name)
	}
	if p.Age > 0 {
		lines = append(lines, fmt.Sprintf("年龄: %d", p.Age))
	}
	if p.Gender != "" {
		lines = append(lines, "性别: "+p.Gender)
	}
	if len(p.Tags) > 0 {
		lines = append(lines, "标签: "+strings.Join(p.Tags, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "【用户信息】\n" + strings.Join(lines, "\n")
}

func renderFactsBlock(facts []store.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = fmt.Sprintf("- %s %s %s", f.Subject, f.Predicate, f.Object)
	}
	return "【已知信息】\n" + strings.Join(lines, "\n")
}

func renderEpisodesBlock(episodes []store.Episode) string {
	if len(episodes) == 0 {
		return ""
	}
	lines := make([]string, len(episodes))
	for i, ep := range episodes {
		lines[i] = "- " + ep.Summary
	}
	return "【相关记忆】\n" + strings.Join(lines, "\n")
}

// truncateWorkingSlice trims messages from the oldest end so their combined
// text fits within maxChars. It never mutates the ring buffer itself or the
// messages already returned to the caller by a prior call — only what
// GetMemoryContext hands back for this one query is shortened. maxChars<=0
// disables the budget.
func truncateWorkingSlice(messages []store.Message, maxChars int) []store.Message {
	if maxChars <= 0 || len(messages) == 0 {
		return messages
	}
	total := 0
	for _, m := range messages {
		total += len([]rune(m.Text))
	}
	start := 0
	for total > maxChars && start < len(messages)-1 {
		total -= len([]rune(messages[start].Text))
		start++
	}
	return messages[start:]
}
