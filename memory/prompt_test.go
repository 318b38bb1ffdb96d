package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caihaoran-00/memchr/store"
)

func TestRenderPromptEmptyContextYieldsEmptyString(t *testing.T) {
	assert.Equal(t, "", RenderPrompt(MemoryContext{}))
}

func TestRenderPromptOmitsBlocksWithNoSource(t *testing.T) {
	out := RenderPrompt(MemoryContext{
		Profile: &store.UserProfile{UserID: "alice", Name: "Alice"},
	})
	assert.Contains(t, out, "【用户信息】")
	assert.NotContains(t, out, "【已知信息】")
	assert.NotContains(t, out, "【相关记忆】")
}

func TestRenderPromptIncludesAllThreeBlocksWhenPopulated(t *testing.T) {
	out := RenderPrompt(MemoryContext{
		Profile:  &store.UserProfile{UserID: "alice", Name: "Alice", Age: 7, Gender: "female", Tags: []string{"dinosaurs"}},
		Facts:    []store.Fact{{Subject: "user", Predicate: "likes", Object: "tea"}},
		Episodes: []store.Episode{{Summary: "talked about dinosaurs"}},
	})

	assert.Contains(t, out, "姓名: Alice")
	assert.Contains(t, out, "年龄: 7")
	assert.Contains(t, out, "性别: female")
	assert.Contains(t, out, "标签: dinosaurs")
	assert.Contains(t, out, "【已知信息】")
	assert.Contains(t, out, "- user likes tea")
	assert.Contains(t, out, "【相关记忆】")
	assert.Contains(t, out, "- talked about dinosaurs")
}

func TestRenderPromptIsDeterministic(t *testing.T) {
	ctx := MemoryContext{
		Profile: &store.UserProfile{UserID: "alice", Name: "Alice"},
		Facts:   []store.Fact{{Subject: "user", Predicate: "likes", Object: "tea"}},
	}
	assert.Equal(t, RenderPrompt(ctx), RenderPrompt(ctx))
}

func TestRenderPromptTrimsSurroundingWhitespace(t *testing.T) {
	out := RenderPrompt(MemoryContext{Profile: &store.UserProfile{UserID: "alice", Name: "Alice"}})
	assert.NotEqual(t, byte(' '), out[0])
	assert.NotEqual(t, byte('\n'), out[len(out)-1])
}

func TestRenderProfileBlockEmptyProfileYieldsNoBlock(t *testing.T) {
	out := RenderPrompt(MemoryContext{Profile: &store.UserProfile{UserID: "alice"}})
	assert.Equal(t, "", out)
}

func TestTruncateWorkingSliceDropsOldestUntilWithinBudget(t *testing.T) {
	messages := []store.Message{
		{Text: "aaaaa"}, // 5 chars
		{Text: "bbbbb"}, // 5 chars
		{Text: "ccccc"}, // 5 chars
	}
	out := truncateWorkingSlice(messages, 8)
	assert.Len(t, out, 1)
	assert.Equal(t, "ccccc", out[0].Text)
}

func TestTruncateWorkingSliceZeroBudgetDisablesTruncation(t *testing.T) {
	messages := []store.Message{{Text: "hello"}, {Text: "world"}}
	assert.Equal(t, messages, truncateWorkingSlice(messages, 0))
}

func TestTruncateWorkingSliceAlwaysKeepsAtLeastTheNewestMessage(t *testing.T) {
	messages := []store.Message{{Text: "a very very long message far over budget"}}
	out := truncateWorkingSlice(messages, 1)
	assert.Len(t, out, 1)
}

func TestTruncateWorkingSliceNoOpWhenAlreadyWithinBudget(t *testing.T) {
	messages := []store.Message{{Text: "hi"}, {Text: "there"}}
	assert.Equal(t, messages, truncateWorkingSlice(messages, 100))
}
