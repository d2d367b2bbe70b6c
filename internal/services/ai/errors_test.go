package ai

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "api 429", err: &APIError{StatusCode: 429}, want: true},
		{name: "wrapped api 429", err: fmt.Errorf("step: %w", &APIError{StatusCode: 429}), want: true},
		{name: "quota is not a rate limit", err: &APIError{StatusCode: 429, IsPermanent: true}, want: false},
		{name: "message", err: errors.New("Too Many Requests"), want: true},
		{name: "other", err: errors.New("connection reset"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractAPIError_FromMessage(t *testing.T) {
	t.Parallel()

	err := errors.New(`POST /v1/chat/completions: 429 {"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}`)
	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		t.Fatal("expected APIError")
	}
	if !apiErr.IsPermanent || apiErr.RetryAfter == nil || *apiErr.RetryAfter != time.Hour {
		t.Errorf("got %+v", apiErr)
	}
	if ExtractAPIError(errors.New("timeout")) != nil {
		t.Error("non-provider errors should not be converted")
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{name: "generic first attempt", err: errors.New("boom"), attempt: 0, want: 5 * time.Second},
		{name: "generic capped", err: errors.New("boom"), attempt: 20, want: 5 * time.Minute},
		{name: "rate limit", err: &APIError{StatusCode: 429}, attempt: 1, want: 2 * time.Minute},
		{name: "rate limit capped", err: &APIError{StatusCode: 429}, attempt: 9, want: 15 * time.Minute},
		{name: "quota", err: &APIError{StatusCode: 429, IsPermanent: true}, attempt: 0, want: time.Hour},
		{name: "quota capped", err: &APIError{Code: "insufficient_quota"}, attempt: 10, want: 24 * time.Hour},
		{name: "negative attempt", err: errors.New("boom"), attempt: -3, want: 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedactKey(t *testing.T) {
	t.Parallel()

	if got := RedactKey("sk-1234567890abcd"); got != "sk-1"+RedactedValue+"abcd" {
		t.Errorf("RedactKey() = %q", got)
	}
	if RedactKey("short") != RedactedValue {
		t.Error("short keys should be fully redacted")
	}
	if RedactKey("") != "" {
		t.Error("empty key should stay empty")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Busco depto en Centro", "Busco depto en Centro"},
		{"phone", "llamame al +54 9 341 555-1234", "llamame al *********1234"},
		{"email", "mi mail es lucia@example.com", "mi mail es " + RedactedValue},
		{"short numbers stay", "2 ambientes, USD 120000", "2 ambientes, USD 120000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Preview(tt.in, false); got != tt.want {
				t.Errorf("Preview(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", MaxPreviewLength*2)
	if got := Preview(long, false); len(got) > MaxPreviewLength+3 {
		t.Errorf("Preview() kept %d chars", len(got))
	}
}
