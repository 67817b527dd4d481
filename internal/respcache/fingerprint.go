package respcache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"playground-gateway/internal/pkg/json"
)

type fingerprintInput struct {
	Prompt   string    `json:"prompt"`
	Messages []Message `json:"messages"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
}

// Fingerprint returns the 16-character hex key for the 4-tuple. It is
// stable across processes but not collision resistant.
func Fingerprint(prompt string, messages []Message, provider, model string) string {
	if messages == nil {
		messages = []Message{}
	}
	in := fingerprintInput{
		Prompt:   prompt,
		Messages: messages,
		Provider: provider,
		Model:    model,
	}

	body, err := json.Marshal(in)
	if err != nil {
		// Only strings go in, so this is unreachable in practice; fall back
		// to a delimited form instead of failing the lookup.
		var b strings.Builder
		b.WriteString(prompt)
		for _, m := range messages {
			b.WriteString("|" + m.Role + ":" + m.Content)
		}
		b.WriteString("|" + in.Provider + "|" + in.Model)
		body = []byte(b.String())
	}

	return fmt.Sprintf("%016x", xxhash.Sum64(body))
}
