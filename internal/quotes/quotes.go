package quotes

import (
	"fmt"
	"strings"
	"time"
)

// Quote is a normalized motivational quote from any provider.
type Quote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
	Source    string    `json:"source"` // "quotable"|"zenquotes"|"favqs"|"fallback"|"mock"
	FetchedAt time.Time `json:"fetched_at"`
}

const maxQuoteLength = 1000

// ValidateQuote normalizes and validates a quote in place with fail-closed
// behavior: anything a provider hands back that cannot be shown to a user
// is rejected here, before it reaches cache or caller.
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("empty quote text")
	}
	if len(q.Text) > maxQuoteLength {
		return fmt.Errorf("quote text too long: %d chars", len(q.Text))
	}

	q.Author = strings.TrimSpace(q.Author)
	if q.Author == "" {
		q.Author = "Unknown"
	}

	q.Category = strings.ToLower(strings.TrimSpace(q.Category))

	if q.FetchedAt.After(time.Now().Add(time.Minute)) {
		return fmt.Errorf("fetched_at in the future: %v", q.FetchedAt)
	}

	return nil
}

// Error kinds for provider fetch failures.
const (
	ErrKindTimeout     = "timeout"
	ErrKindProvider    = "provider_error"
	ErrKindCircuitOpen = "circuit_open"
	ErrKindRateLimited = "rate_limited"
	ErrKindUnknown     = "unknown"
)

// FetchError classifies a provider fetch failure.
type FetchError struct {
	Kind     string
	Provider string
	Message  string
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error from %s: %s (%v)", e.Kind, e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error from %s: %s", e.Kind, e.Provider, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func NewTimeoutError(provider, message string) *FetchError {
	return &FetchError{Kind: ErrKindTimeout, Provider: provider, Message: message}
}

func NewProviderError(provider, message string, cause error) *FetchError {
	return &FetchError{Kind: ErrKindProvider, Provider: provider, Message: message, Cause: cause}
}

func NewCircuitOpenError(provider string) *FetchError {
	return &FetchError{Kind: ErrKindCircuitOpen, Provider: provider, Message: "circuit open, call short-circuited"}
}

func NewRateLimitedError(provider, message string) *FetchError {
	return &FetchError{Kind: ErrKindRateLimited, Provider: provider, Message: message}
}

func NewUnknownError(provider string, cause error) *FetchError {
	return &FetchError{Kind: ErrKindUnknown, Provider: provider, Message: "unexpected fetch failure", Cause: cause}
}
