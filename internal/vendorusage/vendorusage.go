// Package vendorusage extracts {prompt, candidate} unit counts from the
// response payloads of generation vendors. The billing engine never issues
// a generation call itself; callers hand it the completed response (or its
// usage block) and this package normalizes the counters for pricing.
package vendorusage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"

	"github.com/verilens-labs/billing-engine/pricing"
)

// ErrNoUsage is returned when a vendor payload carries no usage metadata.
// A response without usage cannot be billed from the payload alone.
var ErrNoUsage = errors.New("vendorusage: no usage metadata in response")

// geminiEnvelope matches the slice of a generateContent response we care
// about. Field names follow the Gemini REST API.
type geminiEnvelope struct {
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// FromGemini pulls usage out of a raw Gemini generateContent response.
func FromGemini(raw []byte) (pricing.Usage, error) {
	var env geminiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pricing.Usage{}, fmt.Errorf("vendorusage: decode gemini response: %w", err)
	}
	if env.UsageMetadata == nil {
		return pricing.Usage{}, ErrNoUsage
	}
	return pricing.Usage{
		PromptUnits:    env.UsageMetadata.PromptTokenCount,
		CandidateUnits: env.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// FromOpenAI converts an openai-go usage block.
func FromOpenAI(u openai.CompletionUsage) pricing.Usage {
	return pricing.Usage{
		PromptUnits:    int(u.PromptTokens),
		CandidateUnits: int(u.CompletionTokens),
	}
}

// FromBedrock converts the token usage of a Bedrock Converse response.
func FromBedrock(u *brtypes.TokenUsage) (pricing.Usage, error) {
	if u == nil {
		return pricing.Usage{}, ErrNoUsage
	}
	return pricing.Usage{
		PromptUnits:    int(aws.ToInt32(u.InputTokens)),
		CandidateUnits: int(aws.ToInt32(u.OutputTokens)),
	}, nil
}
