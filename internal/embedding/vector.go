package embedding

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/relaynote/internal/apperr"
)

// FormatVector encodes v as the JSON array carried in a relay embedding tag.
func FormatVector(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// ParseVector decodes a relay embedding tag. Both a JSON array and a plain
// comma-separated list are accepted. An empty tag yields a nil vector.
// Anything else, including NaN or infinite components, is a validation error.
func ParseVector(tag string) ([]float32, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}

	var raw []float64
	if strings.HasPrefix(tag, "[") {
		if err := json.Unmarshal([]byte(tag), &raw); err != nil {
			return nil, apperr.Validation("embedding: parse vector", err)
		}
	} else {
		for _, part := range strings.Split(tag, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, apperr.Validation("embedding: parse vector", err)
			}
			raw = append(raw, f)
		}
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("embedding: parse vector", errors.New("empty vector"))
	}

	out := make([]float32, len(raw))
	for i, f := range raw {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, apperr.Validation("embedding: parse vector", fmt.Errorf("component %d is not finite", i))
		}
		out[i] = float32(f)
	}
	return out, nil
}
