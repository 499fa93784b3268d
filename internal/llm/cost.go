package llm

import (
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Pricing is the USD price per 1K tokens.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
	// PerStartedBlock bills every started block of 1K tokens in full.
	PerStartedBlock bool
}

var (
	WatsonxPricing = Pricing{PromptPer1K: 0.003, CompletionPer1K: 0.015, PerStartedBlock: true}
	OpenAIPricing  = Pricing{PromptPer1K: 0.005, CompletionPer1K: 0.015}
)

// EstimateCost returns the USD cost of a completion.
func EstimateCost(p Pricing, promptTokens, completionTokens int) float64 {
	pt := float64(promptTokens) / 1000
	ct := float64(completionTokens) / 1000
	if p.PerStartedBlock {
		pt = math.Ceil(pt)
		ct = math.Ceil(ct)
	}
	return pt*p.PromptPer1K + ct*p.CompletionPer1K
}

// Tokenize is a whitespace token count, used where no model tokenizer
// applies.
func Tokenize(text string) int {
	return len(strings.Fields(text))
}

var (
	encodingMu    sync.RWMutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// CountTokens counts text with the model's BPE encoding, falling back to
// cl100k_base and finally to Tokenize when no encoding can be loaded.
func CountTokens(model, text string) int {
	enc := encodingFor(model)
	if enc == nil {
		return Tokenize(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// loadEncoding resolves the BPE encoding for a model. The first load of an
// encoding may download its ranks file.
var loadEncoding = func(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return tiktoken.GetEncoding("cl100k_base")
	}
	return enc, nil
}

// encodingFor returns the cached encoding for model. Failed loads are not
// cached, so a later call retries.
func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.RLock()
	enc, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return enc
	}

	enc, err := loadEncoding(model)
	if err != nil || enc == nil {
		return nil
	}

	encodingMu.Lock()
	encodingCache[model] = enc
	encodingMu.Unlock()
	return enc
}
