package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 2 {
		t.Errorf("Expected MaxAttempts 2, got %d", config.MaxAttempts)
	}
	if config.Multiplier != 1 {
		t.Errorf("Expected Multiplier 1, got %d", config.Multiplier)
	}
	if config.MaxWaitPerAttempt != 60*time.Second {
		t.Errorf("Expected MaxWaitPerAttempt 60s, got %v", config.MaxWaitPerAttempt)
	}
	if config.MaxTotalWait != 300*time.Second {
		t.Errorf("Expected MaxTotalWait 300s, got %v", config.MaxTotalWait)
	}
}

func TestNewRetryClient_Timeout(t *testing.T) {
	if got := NewRetryClient(nil).GetTimeout(); got != DefaultRequestTimeout {
		t.Errorf("Expected default header timeout %v, got %v", DefaultRequestTimeout, got)
	}
	if got := NewRetryClientWithTimeout(5*time.Second, nil).GetTimeout(); got != 5*time.Second {
		t.Errorf("Expected header timeout 5s, got %v", got)
	}

	rc := NewRetryClient(&RetryConfig{MaxAttempts: 0})
	if rc.config.MaxAttempts != 1 {
		t.Errorf("Expected MaxAttempts to be clamped to 1, got %d", rc.config.MaxAttempts)
	}
}

func TestRetryClient_RetriesAndRewindsBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("Attempt %d: expected body 'payload', got %q", calls.Load()+1, body)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	resp, err := noWaitRetry(3).Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected final status 200, got %d", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestRetryClient_ReturnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := noWaitRetry(2).Do(req)
	if err != nil {
		t.Fatalf("Expected the last response instead of an error, got %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusTooManyRequests || string(body) != "slow down" {
		t.Errorf("Expected readable 429 response, got %d %q", resp.StatusCode, body)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
}

func TestRetryClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := noWaitRetry(3).Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt for 404, got %d", calls.Load())
	}
}

func TestRetryClient_ContextCancelledDuringWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rc := NewRetryClient(&RetryConfig{
		MaxAttempts:       3,
		Multiplier:        10,
		MaxWaitPerAttempt: time.Minute,
		MaxTotalWait:      time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := rc.Do(req)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected the wait to be interrupted by the context")
	}
}

func TestRetryClient_CalculateWaitTime(t *testing.T) {
	rc := NewRetryClient(&RetryConfig{
		MaxAttempts:       5,
		Multiplier:        2,
		MaxWaitPerAttempt: 5 * time.Second,
		MaxTotalWait:      time.Minute,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 5 * time.Second},
		{3, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := rc.calculateWaitTime(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestShouldRetryStatus(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusOK:                  false,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusGatewayTimeout:      true,
	} {
		if got := shouldRetryStatus(status); got != want {
			t.Errorf("shouldRetryStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
