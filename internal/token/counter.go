// Package token provides token counting backed by tiktoken-go. It lazily
// initializes the cl100k_base encoding on first use and falls back to a
// character-based heuristic if initialization fails, so counting never errors.
package token

import (
	"crypto/sha256"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountTokens returns the token count of text under the cl100k_base encoding.
// If tiktoken is unavailable it falls back to EstimateFast.
func CountTokens(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast returns a heuristic token estimate: max(runes/4, word_count).
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// CachedCounter memoizes token counts by content hash. Conversation history
// is re-counted on every turn while only the tail changes, so the cache turns
// the per-turn cost from O(history) encodes into O(new messages).
type CachedCounter struct {
	cache *lru.Cache[[32]byte, int]
	count func(string) int
}

// NewCachedCounter builds a counter caching up to size entries on top of fn.
// A nil fn defaults to CountTokens.
func NewCachedCounter(size int, fn func(string) int) (*CachedCounter, error) {
	if size <= 0 {
		size = 4096
	}
	if fn == nil {
		fn = CountTokens
	}
	cache, err := lru.New[[32]byte, int](size)
	if err != nil {
		return nil, err
	}
	return &CachedCounter{cache: cache, count: fn}, nil
}

// Count returns the token count of text, serving repeats from the cache.
func (c *CachedCounter) Count(text string) int {
	key := sha256.Sum256([]byte(text))
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}
	n := c.count(text)
	c.cache.Add(key, n)
	return n
}
