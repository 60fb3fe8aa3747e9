package pricing

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultCharsPerUnit = 4

// tokenCounter lazily loads tiktoken encodings keyed by model prefix.
// Gemini models have no public tokenizer, so they (and anything else
// unrecognised) fall back to the chars-per-unit heuristic.
type tokenCounter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// modelEncoding maps model prefixes to tiktoken encoding names.
var modelEncoding = map[string]string{
	"gpt-4o":  "o200k_base",
	"gpt-4.1": "o200k_base",
	"o1":      "o200k_base",
	"o3":      "o200k_base",
	"gpt-4":   "cl100k_base",
	"gpt-3.5": "cl100k_base",
}

func encodingForModel(modelID string) string {
	for prefix, enc := range modelEncoding {
		if strings.HasPrefix(modelID, prefix) {
			return enc
		}
	}
	return ""
}

func (c *tokenCounter) getEncoding(modelID string) *tiktoken.Tiktoken {
	encName := encodingForModel(modelID)
	if encName == "" {
		return nil
	}

	c.mu.RLock()
	enc, ok := c.encodings[encName]
	c.mu.RUnlock()
	if ok {
		return enc
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if enc, ok := c.encodings[encName]; ok {
		return enc
	}

	enc, err := tiktoken.GetEncoding(encName)
	if err != nil {
		return nil
	}
	c.encodings[encName] = enc
	return enc
}

// count returns the unit count for text: exact when an encoding is
// available, len/charsPerUnit otherwise.
func (c *tokenCounter) count(modelID, text string, charsPerUnit int) int {
	enc := c.getEncoding(modelID)
	if enc == nil {
		return len(text) / charsPerUnit
	}
	return len(enc.Encode(text, nil, nil))
}
