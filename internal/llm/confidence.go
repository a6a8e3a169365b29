package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

const confidenceInstruction = "\n\nAfter your answer, append exactly one tag in the " +
	"format [CONFIDENCE: <value>] where <value> is a float between 0 and 1."

// DefaultConfidence is reported when the model omits or garbles the tag.
const DefaultConfidence = 0.5

var (
	confidenceTag      = regexp.MustCompile(`\[CONFIDENCE:\s*([\d.]+)\]`)
	confidenceTagStrip = regexp.MustCompile(`\s*\[CONFIDENCE:\s*[\d.]+\]`)
)

// GenerateWithConfidence asks the model to self-report a confidence tag and
// returns the answer with the tag removed.
func GenerateWithConfidence(ctx context.Context, g Generator, prompt, model string) (string, float64, error) {
	raw, err := g.Generate(ctx, GenerateRequest{Prompt: prompt + confidenceInstruction, Model: model})
	if err != nil {
		return "", 0, err
	}
	text, confidence := ExtractConfidence(raw)
	return text, confidence, nil
}

// ExtractConfidence splits a [CONFIDENCE: x] tag off raw. The value is clamped
// to [0,1]; a missing or unparsable tag yields DefaultConfidence.
func ExtractConfidence(raw string) (string, float64) {
	confidence := DefaultConfidence
	if m := confidenceTag.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = min(max(v, 0), 1)
		}
	}
	return strings.TrimSpace(confidenceTagStrip.ReplaceAllString(raw, "")), confidence
}
