// Package llm provides the unified LLM client contract the Extractor and
// the host application's reply generation depend on, plus the openai,
// zhipu, and mock provider implementations and a shared retry policy.
package llm

import (
	"context"
	"time"

	"github.com/caihaoran-00/memchr/internal/apperr"
)

// Role mirrors the closed message-role set used throughout the module.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn passed to Chat or embedded in an Extract prompt.
type Message struct {
	Role Role
	Text string
}

// ChatRequest carries everything a provider needs for a reply-generation
// call. Used by the host application, not by the extraction pipeline.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float32
}

// ExtractRequest is the Extractor's only call into a Client. Schema
// describes the JSON shape the provider must return; a provider that
// cannot honor it returns apperr.SchemaError.
type ExtractRequest struct {
	Prompt      string
	Schema      *JSONSchema
	Model       string
	Temperature float32
}

// Client is the contract every provider satisfies. Extract must return a
// value decodable into the caller's target struct or an *apperr.Error with
// Kind apperr.KindSchemaError; the Extractor falls back to rule-based
// extraction on that error and does not retry it.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Extract(ctx context.Context, req ExtractRequest) (string, error)
}

// New builds the configured provider. provider is one of "openai",
// "zhipu", "mock"; an unrecognized value is a configuration error, not a
// transient one, since it can never succeed on retry.
func New(provider, apiKey, baseURL string, maxRetries int, timeout time.Duration) (Client, error) {
	switch provider {
	case "mock":
		return newMockClient(), nil
	case "openai":
		return newOpenAIClient(apiKey, baseURL, maxRetries, timeout), nil
	case "zhipu":
		return newZhipuClient(apiKey, baseURL, maxRetries, timeout), nil
	default:
		return nil, apperr.ConfigErrorf("unknown llm_provider %q", provider)
	}
}
