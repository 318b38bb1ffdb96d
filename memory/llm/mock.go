package llm

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// mockClient is deterministic: its output is a pure function of its input,
// never a wall-clock or RNG call. Used by the minimal preset and by tests
// that need a Client without network access.
type mockClient struct{}

func newMockClient() *mockClient { return &mockClient{} }

func (c *mockClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			last = m.Text
		}
	}
	return fmt.Sprintf("[mock reply to %q]", truncateForEcho(last)), nil
}

// Extract returns a canned JSON document derived from the prompt's hash so
// repeated calls against the same prompt are stable, which is what the
// mock determinism tests rely on.
func (c *mockClient) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	h := sha1.Sum([]byte(req.Prompt))
	digest := hex.EncodeToString(h[:])[:8]

	return fmt.Sprintf(`{
		"summary": "mock summary %s",
		"keywords": ["mock", "%s"],
		"emotion": "neutral",
		"importance": 0.4,
		"facts": [],
		"profile_delta": {"add_tags": []}
	}`, digest, digest), nil
}

func truncateForEcho(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
