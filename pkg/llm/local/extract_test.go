package local

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   map[string]any
		wantOK bool
	}{
		{
			name:   "bare object",
			input:  `{"color_scheme":"Reds"}`,
			want:   map[string]any{"color_scheme": "Reds"},
			wantOK: true,
		},
		{
			name:   "object wrapped in prose",
			input:  "Here is my suggestion: {\"opacity\": 0.5} Hope it helps!",
			want:   map[string]any{"opacity": json.Number("0.5")},
			wantOK: true,
		},
		{
			name:   "fenced block",
			input:  "```json\n{\"point_size\": 3}\n```",
			want:   map[string]any{"point_size": json.Number("3")},
			wantOK: true,
		},
		{
			name:   "nested object",
			input:  `Try {"classification": {"method": "quantile", "classes": 5}} for this`,
			want:   map[string]any{"classification": map[string]any{"method": "quantile", "classes": json.Number("5")}},
			wantOK: true,
		},
		{
			name:   "object inside array",
			input:  `[{"color_scheme": "viridis"}]`,
			want:   map[string]any{"color_scheme": "viridis"},
			wantOK: true,
		},
		{
			name:   "empty object",
			input:  "{}",
			want:   map[string]any{},
			wantOK: true,
		},
		{name: "no braces", input: "Use a sequential palette."},
		{name: "empty string", input: ""},
		{name: "only opening brace", input: "{ not closed"},
		{name: "only closing brace", input: "not opened }"},
		{name: "braces reversed", input: "} backwards {"},
		{name: "two separate objects", input: `{"a": 1} or maybe {"b": 2}`},
		{name: "prose braces before object", input: `use {x} then {"opacity": 1}`},
		{name: "unquoted keys", input: `{color_scheme: viridis}`},
		{name: "trailing comma", input: `{"opacity": 0.8,}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ExtractJSONObject(%q) ok = %v; want %v", tt.input, ok, tt.wantOK)
			}
			if !tt.wantOK {
				if got != nil {
					t.Errorf("got %v; want nil on failure", got)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractJSONObject(%q) = %#v; want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject_PreservesUnconventionalFields(t *testing.T) {
	got, ok := ExtractJSONObject(`{"color_scheme": "Greens", "label_font": "Noto Sans"}`)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if _, has := got["opacity"]; has {
		t.Error("extractor must not fill in missing fields")
	}
	if got["label_font"] != "Noto Sans" {
		t.Errorf("label_font = %v", got["label_font"])
	}
}

func TestExtractJSONObject_NumbersRoundTrip(t *testing.T) {
	got, ok := ExtractJSONObject(`{"opacity": 0.80, "stroke_width": 1.0}`)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	out, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"opacity":0.80,"stroke_width":1.0}` {
		t.Errorf("re-encoded = %s", out)
	}
}
