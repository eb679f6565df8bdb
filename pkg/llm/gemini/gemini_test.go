package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mundigis/kue/pkg/llm"
)

func TestComplete(t *testing.T) {
	var gotKey string
	var gotBody struct {
		SystemInstruction content   `json:"systemInstruction"`
		Contents          []content `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	got, err := New("g-key", "").WithBaseURL(srv.URL).Complete(context.Background(), "persona", "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("Complete = %q, want %q", got, "Hello there")
	}
	if gotKey != "g-key" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}
	if len(gotBody.SystemInstruction.Parts) != 1 || gotBody.SystemInstruction.Parts[0].Text != "persona" {
		t.Errorf("systemInstruction = %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("contents = %+v", gotBody.Contents)
	}
}

func TestComplete_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	if _, err := New("k", "").WithBaseURL(srv.URL).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestComplete_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := New("k", "").WithBaseURL(srv.URL).Complete(context.Background(), "s", "u")
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}
