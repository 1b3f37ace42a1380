package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInvalidTransition, status: http.StatusBadRequest, publicMsg: "status transition not allowed", detailsOK: true},
		{code: CodeInvalidCancellationStatus, status: http.StatusBadRequest, publicMsg: "order cannot be cancelled in current state", detailsOK: true},
		{code: CodeInvalidCancellationReason, status: http.StatusBadRequest, publicMsg: "cancellation reason is too short", detailsOK: true},
		{code: CodeInvalidDispatchState, status: http.StatusConflict, publicMsg: "order is not dispatchable", retryable: true, detailsOK: true},
		{code: CodeAgentNoLongerAvailable, status: http.StatusConflict, publicMsg: "agent is no longer available", retryable: true, detailsOK: true},
		{code: CodeAlreadySettled, status: http.StatusConflict, publicMsg: "delivery already settled", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity, publicMsg: "insufficient wallet balance", detailsOK: true},
		{code: CodeInvalidWithdrawalState, status: http.StatusUnprocessableEntity, publicMsg: "withdrawal transition disallowed", detailsOK: true},
		{code: CodeConcurrencyConflict, status: http.StatusConflict, publicMsg: "concurrent update detected, retry", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeAlreadySettled, "earning exists")
	if !HasCode(err, CodeAlreadySettled) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeConflict) {
		t.Fatalf("HasCode matched wrong code")
	}
	if HasCode(nil, CodeConflict) {
		t.Fatalf("HasCode(nil) should be false")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeInvalidDispatchState, "order not ready")
	if got := As(err); got == nil || got.Code() != CodeInvalidDispatchState {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
