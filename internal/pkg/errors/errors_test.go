package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  BadParamError("target class has id %d", 3),
			want: "BAD_PARAM: target class has id 3",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeBadParam, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeSimIndex, http.StatusConflict},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{CodeQdrantError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestAppError_GRPCStatus(t *testing.T) {
	tests := []struct {
		code string
		want codes.Code
	}{
		{CodeBadParam, codes.InvalidArgument},
		{CodeSimIndex, codes.FailedPrecondition},
		{CodeUnavailable, codes.Unavailable},
		{CodeInternal, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			st, ok := status.FromError(New(tt.code, "boom"))
			if !ok {
				t.Fatal("status.FromError did not recognise AppError")
			}
			if st.Code() != tt.want {
				t.Errorf("Code() = %v, want %v", st.Code(), tt.want)
			}
		})
	}
}

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("measure: %w", BadParamError("negative target"))

	if !IsBadParam(err) {
		t.Error("IsBadParam should see through fmt.Errorf wrapping")
	}
	if IsSimIndex(err) {
		t.Error("IsSimIndex should be false for bad-param errors")
	}
	if HasCode(errors.New("plain"), CodeBadParam) {
		t.Error("plain errors carry no code")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("SoftSkip", func(t *testing.T) {
		err := SoftSkip("roi requested without roi entries")
		if err.Code != CodeSoftSkip {
			t.Errorf("Code = %s, want %s", err.Code, CodeSoftSkip)
		}
	})

	t.Run("SimIndexError", func(t *testing.T) {
		err := SimIndexError("cannot build index if not created", nil)
		if err.Code != CodeSimIndex {
			t.Errorf("Code = %s, want %s", err.Code, CodeSimIndex)
		}
	})

	t.Run("RateLimitedError", func(t *testing.T) {
		err := RateLimitedError(2)
		if err.Details["retry_after"] != "2" {
			t.Errorf("retry_after = %q, want 2", err.Details["retry_after"])
		}
	})

	t.Run("ServiceUnavailableError", func(t *testing.T) {
		err := ServiceUnavailableError("redis")
		if err.Message != "redis is unavailable" {
			t.Errorf("Message = %q", err.Message)
		}
	})
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, BadParamError("bad nclasses"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeBadParam || resp.Message != "bad nclasses" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("plain error is sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("secret connection string"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		var resp ErrorResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Code != CodeInternal {
			t.Errorf("Code = %s, want %s", resp.Code, CodeInternal)
		}
	})
}

func TestWriteErrorWithStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorWithStatus(rec, http.StatusNotFound, errors.New("no history"))

	var resp ErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != CodeNotFound {
		t.Errorf("Code = %s, want %s", resp.Code, CodeNotFound)
	}
	if resp.Message != "no history" {
		t.Errorf("Message = %s", resp.Message)
	}
}
