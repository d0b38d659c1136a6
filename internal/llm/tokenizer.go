package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// getCodec returns the cl100k_base tokenizer.
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for text.
// cl100k_base is close enough for budgeting across most chat models.
func EstimateTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EstimateRequestTokens estimates the prompt size of req, counting the system
// prompt and every message body. Errors count as zero.
func EstimateRequestTokens(req Request) int {
	total := 0
	if req.System != "" {
		n, _ := EstimateTokens(req.System)
		total += n
	}
	for _, m := range req.Messages {
		n, _ := EstimateTokens(m.Content)
		total += n
	}
	return total
}
