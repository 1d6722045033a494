package semantic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// ErrMalformedResponse is returned when no JSON object can be read from a reply
var ErrMalformedResponse = errors.New("malformed model response")

// ParseResponse reads a SemanticScore from a model reply. The reply is parsed
// as JSON; failing that, the text between the first '{' and the last '}' is
// parsed once more. Anything else is an error, never a zero score.
func ParseResponse(raw string) (*core.SemanticScore, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
		}
		fields, err = decodeObject(raw[start : end+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrMalformedResponse)
	}

	score := &core.SemanticScore{
		SemanticConsistency:     flexInt(fields["semantic_consistency"]),
		StyleAnomaly:            flexInt(fields["style_anomaly"]),
		SocialEngineering:       flexInt(fields["social_engineering"]),
		LLMGeneratedProbability: flexInt(fields["llm_generated_probability"]),
		Evidence:                flexString(fields["evidence"]),
	}
	score.Clamp()
	return score, nil
}

func decodeObject(s string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// flexInt accepts a JSON number or a numeric string and truncates it toward zero.
// Anything else counts as 0.
func flexInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return truncate(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return truncate(f)
		}
	}
	return 0
}

func truncate(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	// bounded first so the int conversion cannot overflow
	return int(math.Trunc(math.Max(-1, math.Min(101, f))))
}

func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
