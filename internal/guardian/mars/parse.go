package mars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Parsed holds the fields recovered from a classifier response.
type Parsed struct {
	Score    float64
	Category string
	Details  string
	// Strict is true when the response decoded as a JSON object. Fields absent
	// from the top level may still have been scraped individually.
	Strict bool
}

var (
	scoreField    = regexp.MustCompile(`"score"\s*:\s*([\d.]+)`)
	categoryField = regexp.MustCompile(`"category"\s*:\s*"([^"]+)"`)
	detailsField  = regexp.MustCompile(`"details"\s*:\s*"([^"]+)"`)
)

type strictResponse struct {
	Score    *float64 `json:"score"`
	Category *string  `json:"category"`
	Details  *string  `json:"details"`
}

// ParseResponse recovers score, category and details from raw model output.
// It first decodes the outermost {...} span as JSON. Any field the decode did
// not find at the top level, or every field when the decode fails, is then
// searched for on its own anywhere in raw, so nested objects still yield a
// score. Missing fields default to score 0, category "UNKNOWN" and
// details = raw. The score is clamped to [0,1]. An error means a score was
// present but not a number.
func ParseResponse(raw string) (Parsed, error) {
	p := Parsed{Category: "UNKNOWN", Details: raw}

	var strict strictResponse
	strict, p.Strict = decodeStrict(raw)

	if strict.Score != nil {
		p.Score = *strict.Score
	} else if m := scoreField.FindStringSubmatch(raw); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Parsed{}, fmt.Errorf("parse score %q: %w", m[1], err)
		}
		p.Score = v
	}
	p.Score = clamp01(p.Score)

	if strict.Category != nil && *strict.Category != "" {
		p.Category = *strict.Category
	} else if m := categoryField.FindStringSubmatch(raw); m != nil {
		p.Category = m[1]
	}

	if strict.Details != nil && *strict.Details != "" {
		p.Details = *strict.Details
	} else if m := detailsField.FindStringSubmatch(raw); m != nil {
		p.Details = m[1]
	}
	return p, nil
}

func decodeStrict(raw string) (strictResponse, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return strictResponse{}, false
	}
	var out strictResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return strictResponse{}, false
	}
	return out, true
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
