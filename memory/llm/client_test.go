package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/memchr/internal/apperr"
)

func TestNewMockProvider(t *testing.T) {
	client, err := New("mock", "", "", 0, time.Second)
	require.NoError(t, err)

	reply, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Text: "hello"}}})
	require.NoError(t, err)
	assert.Contains(t, reply, "hello")
}

func TestNewUnknownProviderIsConfigError(t *testing.T) {
	_, err := New("carrier-pigeon", "key", "", 0, time.Second)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfigError))
}

func TestMockExtractIsDeterministic(t *testing.T) {
	client, err := New("mock", "", "", 0, time.Second)
	require.NoError(t, err)

	first, err := client.Extract(context.Background(), ExtractRequest{Prompt: "the user likes dinosaurs"})
	require.NoError(t, err)
	second, err := client.Extract(context.Background(), ExtractRequest{Prompt: "the user likes dinosaurs"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMockExtractVariesWithPrompt(t *testing.T) {
	client, err := New("mock", "", "", 0, time.Second)
	require.NoError(t, err)

	a, err := client.Extract(context.Background(), ExtractRequest{Prompt: "prompt one"})
	require.NoError(t, err)
	b, err := client.Extract(context.Background(), ExtractRequest{Prompt: "prompt two"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestChatEchoesLastUserMessageOnly(t *testing.T) {
	client, err := New("mock", "", "", 0, time.Second)
	require.NoError(t, err)

	reply, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleUser, Text: "first"},
		{Role: RoleAssistant, Text: "ignored reply"},
		{Role: RoleUser, Text: "second"},
	}})
	require.NoError(t, err)
	assert.Contains(t, reply, "second")
	assert.NotContains(t, reply, "first")
}
