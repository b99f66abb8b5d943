package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"cooldown", &CooldownError{Remaining: 0.1}, http.StatusTooManyRequests, ErrCodeCooldownActive},
		{"network", fmt.Errorf("request help: %w", ErrNetworkUnavailable), http.StatusServiceUnavailable, ErrCodeNetworkUnavailable},
		{"location", ErrLocationUnavailable, http.StatusNotFound, ErrCodeLocation},
		{"in progress", ErrDispatchInProgress, http.StatusConflict, ErrCodeDispatchInProgress},
		{"not counting", ErrNotCounting, http.StatusConflict, ErrCodeNotCounting},
		{"dispatch", fmt.Errorf("%w: fcm down", ErrDispatchFailure), http.StatusBadGateway, ErrCodeDispatch},
		{"service error passes through", NewConflictError("taken"), http.StatusConflict, ErrCodeConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToServiceError(tt.err)
			if got.StatusCode != tt.status || got.Code != tt.code {
				t.Errorf("ToServiceError() = %d %s, want %d %s", got.StatusCode, got.Code, tt.status, tt.code)
			}
		})
	}
}

func TestCooldownErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &CooldownError{Remaining: 0.05})
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatal("CooldownError should match ErrCooldownActive")
	}

	got := ToServiceError(err)
	if got.Message != "Please wait 3 minutes before asking for help again" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestCooldownMessage(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{7.0 / 60, "Please wait 7 minutes before asking for help again"},
		{6.5 / 60, "Please wait 7 minutes before asking for help again"},
		{0.2 / 60, "Please wait 1 minute before asking for help again"},
		{0, "Please wait 1 minute before asking for help again"},
	}

	for _, tt := range tests {
		if got := CooldownMessage(tt.hours); got != tt.want {
			t.Errorf("CooldownMessage(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}

func TestCountdownMessage(t *testing.T) {
	if got := CountdownMessage(4); got != "Notifying in 4 seconds" {
		t.Errorf("CountdownMessage(4) = %q", got)
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseError("insert kit", cause)

	if !errors.Is(err, cause) {
		t.Error("database error should wrap its cause")
	}
	serviceErr, ok := GetServiceError(err)
	if !ok || serviceErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("GetServiceError() = %+v, %v", serviceErr, ok)
	}
}
