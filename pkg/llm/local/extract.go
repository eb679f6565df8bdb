package local

import (
	"encoding/json"
	"io"
	"strings"
)

// Styling is a styling suggestion for a layer. Model-produced suggestions
// are not checked against the conventional fields.
type Styling map[string]any

// DefaultStyling is the suggestion used whenever nothing usable can be
// recovered from the model. Each call returns a fresh map.
func DefaultStyling() Styling {
	return Styling{
		"color_scheme":   "viridis",
		"opacity":        0.8,
		"stroke_width":   1,
		"point_size":     5,
		"classification": "natural_breaks",
	}
}

// ExtractJSONObject recovers a JSON object embedded in free text. It takes
// the span from the first '{' to the last '}' and parses it; the span must
// be exactly one object. Numbers are kept as json.Number so values survive
// a re-encode unchanged.
//
// Two separate objects in one reply form a span that is not a single
// object, so the extraction fails rather than guessing which one was meant.
func ExtractJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}
