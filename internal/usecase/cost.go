package usecase

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
	"github.com/fairyhunter13/job-scheduler/pkg/textx"
)

// baselineCost is the deterministic per-capability token cost table from
// SPEC_FULL.md §4.3.
var baselineCost = map[domain.Capability]domain.Tokens{
	domain.CapabilityImage: domain.TokensFromFloat(1.0),
	domain.CapabilityText:  domain.TokensFromFloat(0.5),
	domain.CapabilityAudio: domain.TokensFromFloat(0.5),
	domain.CapabilityVideo: domain.TokensFromFloat(2.0),
}

// textSurchargePer1000Tokens is the extra centi-token cost charged per 1000
// prompt tokens of a text job, on top of the baseline 0.5.
const textSurchargePer1000Tokens = domain.Tokens(10) // 0.10 tokens

var textEncoding = loadTextEncoding()

func loadTextEncoding() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
}

type textParams struct {
	Prompt string `json:"prompt"`
}

// costOf computes the deterministic token cost for a job, never using a
// floating binary type for the stored result. Text jobs refine the baseline
// with a tiktoken-counted prompt-length surcharge; every other capability
// uses the flat baseline.
func costOf(capability domain.Capability, params []byte) domain.Tokens {
	base, ok := baselineCost[capability]
	if !ok {
		return 0
	}
	if capability != domain.CapabilityText || textEncoding == nil || len(params) == 0 {
		return base
	}
	var p textParams
	if err := json.Unmarshal(params, &p); err != nil || p.Prompt == "" {
		return base
	}
	prompt := textx.SanitizeText(p.Prompt)
	tokenCount := len(textEncoding.Encode(prompt, nil, nil))
	surcharge := domain.Tokens(tokenCount/1000) * textSurchargePer1000Tokens
	return base + surcharge
}
