package errors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Network, "network"},
		{Timeout, "timeout"},
		{RateLimit, "rate_limit"},
		{Auth, "auth"},
		{NotFound, "not_found"},
		{ServerError, "server_error"},
		{ClientError, "client_error"},
		{Parse, "parse"},
		{Browser, "browser"},
		{NoCandidate, "no_candidate"},
		{VerificationFailed, "verification_failed"},
		{ControlNotFound, "control_not_found"},
		{NoTraffic, "no_traffic"},
		{VisionInconclusive, "vision_inconclusive"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{Network, true},
		{Timeout, true},
		{RateLimit, true},
		{ServerError, true},
		{Auth, false},
		{NotFound, false},
		{ClientError, false},
		{Parse, false},
		{NoCandidate, false},
		{VerificationFailed, false},
		{ControlNotFound, false},
		{NoTraffic, false},
		{VisionInconclusive, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestExtractError_Error(t *testing.T) {
	err := New(Network, "https://example.com", "replay", "connection failed", nil)

	errStr := err.Error()
	if errStr == "" {
		t.Error("Error() should not return empty string")
	}
	for _, want := range []string{"network", "replay", "https://example.com", "connection failed"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("Error() = %s, should contain %q", errStr, want)
		}
	}
}

func TestExtractError_Error_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(Network, "https://example.com", "replay", "connection failed", cause)

	if !strings.Contains(err.Error(), "underlying error") {
		t.Errorf("Error() = %s, should contain cause", err.Error())
	}
}

func TestExtractError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(Network, "https://example.com", "replay", "failed", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestExtractError_Is(t *testing.T) {
	err1 := New(Network, "https://example.com", "replay", "failed", nil)
	err2 := New(Network, "https://other.com", "request", "timeout", nil)
	err3 := New(Timeout, "https://example.com", "replay", "timeout", nil)

	if !errors.Is(err1, err2) {
		t.Error("Errors with same type should match")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different types should not match")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *ExtractError
		wantType   ErrorType
		wantStatus int
		retryable  bool
	}{
		{"network", NewNetworkError("url", "op", nil), Network, 0, true},
		{"timeout", NewTimeoutError("url", "op", nil), Timeout, 0, true},
		{"rate_limit", NewRateLimitError("url", 60), RateLimit, 429, true},
		{"auth", NewAuthError("url", 401, "unauthorized"), Auth, 401, false},
		{"not_found", NewNotFoundError("url"), NotFound, 404, false},
		{"server", NewServerError("url", 503, "unavailable"), ServerError, 503, true},
		{"client", NewClientError("url", 400, "bad request"), ClientError, 400, false},
		{"parse", NewParseError("url", "json_parse", nil), Parse, 0, false},
		{"browser", NewBrowserError("url", "navigate", nil), Browser, 0, true},
		{"no_candidate", NewNoCandidateError("url", "mine", "nothing found"), NoCandidate, 0, false},
		{"verification", NewVerificationError("url", "empty result", nil), VerificationFailed, 0, false},
		{"control_not_found", NewControlNotFoundError("url"), ControlNotFound, 0, false},
		{"no_traffic", NewNoTrafficError("url", "operate"), NoTraffic, 0, false},
		{"vision", NewVisionError("url", "no control visible", nil), VisionInconclusive, 0, false},
		{"cancelled", NewCancelledError("url", "extract"), Cancelled, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.wantType)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.wantStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestCategorize_ExtractError(t *testing.T) {
	original := NewNetworkError("https://example.com", "replay", nil)
	categorized := Categorize(original, "https://example.com")

	if categorized != original {
		t.Error("Should return same ExtractError")
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "https://example.com") != nil {
		t.Error("Should return nil for nil error")
	}
}

func TestCategorize_ContextCanceled(t *testing.T) {
	err := errors.New("context canceled")
	categorized := Categorize(err, "https://example.com")

	if categorized.Type != Cancelled {
		t.Errorf("Type = %v, want Cancelled", categorized.Type)
	}
}

func TestCategorize_Unknown(t *testing.T) {
	err := errors.New("some random error")
	categorized := Categorize(err, "https://example.com")

	if categorized.Type != Unknown {
		t.Errorf("Type = %v, want Unknown", categorized.Type)
	}
}

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
		wantNil  bool
	}{
		{200, Unknown, true},
		{201, Unknown, true},
		{301, Unknown, true},
		{401, Auth, false},
		{403, Auth, false},
		{404, NotFound, false},
		{429, RateLimit, false},
		{400, ClientError, false},
		{418, ClientError, false},
		{500, ServerError, false},
		{502, ServerError, false},
		{503, ServerError, false},
	}

	for _, tt := range tests {
		err := CategorizeHTTPStatus(tt.status, "https://example.com")
		if tt.wantNil {
			if err != nil {
				t.Errorf("CategorizeHTTPStatus(%d) should return nil", tt.status)
			}
			continue
		}
		if err == nil {
			t.Errorf("CategorizeHTTPStatus(%d) should not return nil", tt.status)
			continue
		}
		if err.Type != tt.wantType {
			t.Errorf("CategorizeHTTPStatus(%d).Type = %v, want %v", tt.status, err.Type, tt.wantType)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"network error", NewNetworkError("url", "op", nil), true},
		{"timeout error", NewTimeoutError("url", "op", nil), true},
		{"auth error", NewAuthError("url", 401, "unauth"), false},
		{"no candidate", NewNoCandidateError("url", "mine", "empty"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestGetStatusCode(t *testing.T) {
	err := NewServerError("url", 503, "unavailable")

	if code := GetStatusCode(err); code != 503 {
		t.Errorf("GetStatusCode() = %d, want 503", code)
	}
	if code := GetStatusCode(nil); code != 0 {
		t.Errorf("GetStatusCode(nil) = %d, want 0", code)
	}
}

func TestGetErrorType(t *testing.T) {
	err := NewTimeoutError("url", "op", nil)

	if errType := GetErrorType(err); errType != Timeout {
		t.Errorf("GetErrorType() = %v, want Timeout", errType)
	}
	if errType := GetErrorType(nil); errType != Unknown {
		t.Errorf("GetErrorType(nil) = %v, want Unknown", errType)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", cfg.InitialDelay)
	}
	if len(cfg.RetryableTypes) == 0 {
		t.Error("RetryableTypes should not be empty")
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("Should succeed")
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1", calls)
	}
}

func TestRetrier_Do_RetryOnError(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	calls := 0
	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewNetworkError("url", "op", nil)
		}
		return nil
	})

	if !result.Success {
		t.Error("Should succeed after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail after max retries")
	}
	if result.Attempts != 3 { // 1 initial + 2 retries
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return NewVerificationError("url", "empty result set", nil) // Not retryable
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1 (no retry)", calls)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       1 * time.Second,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "test", "url", func(ctx context.Context) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail on cancellation")
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	calls := 0
	value, result := DoWithResult(context.Background(), r, "test", "url",
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 2 {
				return 0, NewNetworkError("url", "op", nil)
			}
			return 42, nil
		})

	if !result.Success {
		t.Error("Should succeed after retry")
	}
	if value != 42 {
		t.Errorf("value = %d, want 42", value)
	}
}
