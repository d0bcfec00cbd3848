package contextmon

import (
	"context"
	"fmt"
	"strings"
)

// DigestCompressor is a deterministic, LLM-free Compressor that folds a run
// of messages into a single role-grouped digest. It is the default compressor
// when no summarizing backend is wired in.
type DigestCompressor struct {
	// SnippetLen caps how much of each message body survives into the
	// digest (default: 160 runes).
	SnippetLen int
}

func (d *DigestCompressor) snippetLen() int {
	if d.SnippetLen <= 0 {
		return 160
	}
	return d.SnippetLen
}

// Compress renders the messages as one digest message attributed to the user
// role so downstream consumers treat it as conversation history.
func (d *DigestCompressor) Compress(_ context.Context, messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation digest (%d earlier messages):\n", len(messages))
	for i, msg := range messages {
		fmt.Fprintf(&sb, "- [%d %s] %s\n", i+1, msg.Role, d.snippet(msg.Content))
	}

	return []Message{{
		Role:    RoleUser,
		Content: strings.TrimRight(sb.String(), "\n"),
	}}, nil
}

func (d *DigestCompressor) snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= d.snippetLen() {
		return content
	}
	return string(runes[:d.snippetLen()]) + "…"
}
