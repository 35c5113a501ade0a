package quotes

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateQuote(t *testing.T) {
	tests := []struct {
		name    string
		quote   *Quote
		wantErr bool
	}{
		{
			name:    "valid quote",
			quote:   &Quote{Text: "Keep going.", Author: "Someone", Category: "Motivation"},
			wantErr: false,
		},
		{
			name:    "nil quote",
			quote:   nil,
			wantErr: true,
		},
		{
			name:    "empty text",
			quote:   &Quote{Text: "   ", Author: "Someone"},
			wantErr: true,
		},
		{
			name:    "text too long",
			quote:   &Quote{Text: strings.Repeat("a", 1001)},
			wantErr: true,
		},
		{
			name:    "future fetched_at",
			quote:   &Quote{Text: "ok", FetchedAt: time.Now().Add(time.Hour)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuote(tt.quote)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQuote() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuoteNormalizes(t *testing.T) {
	q := &Quote{Text: "  trimmed  ", Author: "", Category: " Wisdom "}
	if err := ValidateQuote(q); err != nil {
		t.Fatalf("ValidateQuote() error = %v", err)
	}
	if q.Text != "trimmed" {
		t.Errorf("Text = %q, want trimmed", q.Text)
	}
	if q.Author != "Unknown" {
		t.Errorf("Author = %q, want Unknown default", q.Author)
	}
	if q.Category != "wisdom" {
		t.Errorf("Category = %q, want lowercase wisdom", q.Category)
	}
}

func TestFetchErrorKinds(t *testing.T) {
	cause := errors.New("underlying")
	tests := []struct {
		err  *FetchError
		kind string
	}{
		{NewTimeoutError("p", "deadline"), ErrKindTimeout},
		{NewProviderError("p", "bad payload", cause), ErrKindProvider},
		{NewCircuitOpenError("p"), ErrKindCircuitOpen},
		{NewRateLimitedError("p", "throttled"), ErrKindRateLimited},
		{NewUnknownError("p", cause), ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.kind) {
				t.Errorf("Error() = %q, should mention kind", tt.err.Error())
			}
			if tt.err.Provider != "p" {
				t.Errorf("Provider = %q, want p", tt.err.Provider)
			}
		})
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := NewProviderError("p", "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestFallbackSourcePick(t *testing.T) {
	fs := NewFallbackSource()

	q := fs.Pick("motivation")
	if q.Text == "" {
		t.Fatal("fallback must always produce a quote")
	}
	if q.Source != "fallback" {
		t.Errorf("Source = %q, want fallback", q.Source)
	}
	if q.Category != "motivation" {
		t.Errorf("Category = %q, want motivation", q.Category)
	}

	// Unknown category still produces something.
	q = fs.Pick("no-such-category")
	if q.Text == "" {
		t.Error("unknown category must fall back to the whole set")
	}
}

func TestFallbackSourceCategories(t *testing.T) {
	fs := NewFallbackSource()
	cats := fs.Categories()
	if len(cats) == 0 {
		t.Fatal("bundled dataset must cover at least one category")
	}
	seen := map[string]bool{}
	for _, c := range cats {
		seen[c] = true
	}
	for _, want := range []string{"motivation", "wisdom", "perseverance"} {
		if !seen[want] {
			t.Errorf("missing expected category %q", want)
		}
	}
}
