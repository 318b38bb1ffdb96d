package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/caihaoran-00/memchr/internal/apperr"
)

// openAIClient wraps sashabaranov/go-openai, used directly for the openai
// provider and, with a different base URL, for any OpenAI-compatible
// endpoint (zhipu's bigmodel.cn API included). limiter caps outbound
// request rate per client instance so a single noisy session can't starve
// the rest of the process's LLM budget.
type openAIClient struct {
	client     *openai.Client
	maxRetries int
	limiter    *rate.Limiter
}

func newOpenAIClient(apiKey, baseURL string, maxRetries int, timeout time.Duration) *openAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = newHTTPClient(timeout)
	return &openAIClient{
		client:     openai.NewClientWithConfig(cfg),
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

// newZhipuClient points the same OpenAI-compatible transport at zhipu's
// bigmodel.cn endpoint when the caller does not override BaseURL.
func newZhipuClient(apiKey, baseURL string, maxRetries int, timeout time.Duration) *openAIClient {
	if baseURL == "" {
		baseURL = "https://open.bigmodel.cn/api/paas/v4"
	}
	return newOpenAIClient(apiKey, baseURL, maxRetries, timeout)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (c *openAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	return doWithRetry(ctx, c.maxRetries, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.CancelledError(err)
		}
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Messages:    convertMessages(req.Messages),
		})
		if err != nil {
			return "", classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return "", apperr.TransientLLMError(errEmptyChoices)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (c *openAIClient) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	return doWithRetry(ctx, c.maxRetries, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.CancelledError(err)
		}
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       req.Model,
			Temperature: req.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
			},
		})
		if err != nil {
			return "", classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return "", apperr.SchemaError(errEmptyChoices)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Text}
	}
	return out
}

// classifyError maps a go-openai transport error onto the module's error
// taxonomy: 5xx and connection-level failures are transient and retried;
// anything else (4xx auth/validation) is not worth retrying.
func classifyError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "50") || // crude 5xx sniff; go-openai wraps status in the message
		strings.Contains(msg, "EOF") {
		return apperr.TransientLLMError(err)
	}
	return apperr.ConfigError(err)
}

var errEmptyChoices = errors.New("llm response contained no choices")
