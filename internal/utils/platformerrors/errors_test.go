package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/campersurfer/Autopicker/internal/utils/reqid"
)

func TestErrorFormat(t *testing.T) {
	inner := errors.New("disk full")
	err := NewError(context.Background(), LayerRepository, ErrorTypeInternal, "write failed", inner, "7f3a1c9e-0d42-4b7a-9f11-2a6c8d5e4b30")

	want := "[repository][internal-error][7f3a1c9e-0d42-4b7a-9f11-2a6c8d5e4b30] write failed: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to reach the inner error")
	}
}

func TestErrorFormatWithoutInner(t *testing.T) {
	err := NewError(context.Background(), LayerDomain, ErrorTypeNotFound, "file not found", nil, "9b2e7d14-5c83-4f6a-8e20-1d4b3a7c6f95")

	want := "[domain][not-found][9b2e7d14-5c83-4f6a-8e20-1d4b3a7c6f95] file not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAsErrorPreservesType(t *testing.T) {
	orig := NewError(context.Background(), LayerRepository, ErrorTypePayloadTooLarge, "upload exceeds limit", nil, "4c8f2a61-9e05-4d3b-b7a2-6f1e0d9c8b47")
	wrapped := AsError(context.Background(), LayerDomain, fmt.Errorf("saving upload: %w", orig), "upload rejected")

	if wrapped.Type != ErrorTypePayloadTooLarge {
		t.Errorf("wrapped type = %s, want %s", wrapped.Type, ErrorTypePayloadTooLarge)
	}
	if wrapped.UUID != orig.UUID {
		t.Errorf("wrapped UUID = %s, want original %s", wrapped.UUID, orig.UUID)
	}
	if wrapped.Layer != LayerDomain {
		t.Errorf("wrapped layer = %s, want %s", wrapped.Layer, LayerDomain)
	}
}

func TestAsErrorDeadlineExceeded(t *testing.T) {
	wrapped := AsError(context.Background(), LayerInfrastructure, fmt.Errorf("calling upstream: %w", context.DeadlineExceeded), "upstream call failed")
	if wrapped.Type != ErrorTypeUpstreamTimeout {
		t.Errorf("type = %s, want %s", wrapped.Type, ErrorTypeUpstreamTimeout)
	}
}

func TestAsErrorNil(t *testing.T) {
	if got := AsError(context.Background(), LayerDomain, nil, "ignored"); got != nil {
		t.Errorf("AsError(nil) = %v, want nil", got)
	}
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      int
	}{
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeUnauthorized, http.StatusUnauthorized},
		{ErrorTypeForbidden, http.StatusForbidden},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrorTypeUnsupportedType, http.StatusUnsupportedMediaType},
		{ErrorTypeRateLimited, http.StatusTooManyRequests},
		{ErrorTypeServerBusy, http.StatusServiceUnavailable},
		{ErrorTypeUpstream, http.StatusBadGateway},
		{ErrorTypeUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrorTypeInternal, http.StatusInternalServerError},
		{ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			if got := ErrorTypeToHTTPStatus(tt.errorType); got != tt.want {
				t.Errorf("ErrorTypeToHTTPStatus(%s) = %d, want %d", tt.errorType, got, tt.want)
			}
		})
	}
}

func TestIsErrorType(t *testing.T) {
	err := NewError(context.Background(), LayerHandler, ErrorTypeRateLimited, "too many requests", nil, "e5d9b0a3-7c26-4f18-a4b9-8e3d2c1f0a67")
	wrapped := fmt.Errorf("middleware: %w", err)

	if !IsErrorType(wrapped, ErrorTypeRateLimited) {
		t.Error("expected IsErrorType to match through wrapping")
	}
	if IsErrorType(wrapped, ErrorTypeNotFound) {
		t.Error("expected IsErrorType to reject a different type")
	}
	if IsErrorType(nil, ErrorTypeNotFound) {
		t.Error("expected IsErrorType(nil) to be false")
	}
	if IsErrorType(errors.New("plain"), ErrorTypeInternal) {
		t.Error("expected plain errors not to match")
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := reqid.With(context.Background(), "req-123")
	err := NewError(ctx, LayerHandler, ErrorTypeValidation, "bad input", nil, "")

	if err.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want %q", err.RequestID, "req-123")
	}
	if err.UUID == "" {
		t.Error("expected a generated UUID when none is supplied")
	}
}
