package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeEmptyCart, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeForbidden, http.StatusForbidden},
		{CodePaymentGateway, http.StatusBadGateway},
		{CodeStateConflict, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, got)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "persist order")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be discoverable")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	inner := New(CodeEmptyCart, "your cart is empty")
	wrapped := fmt.Errorf("checkout: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatalf("expected typed error")
	}
	if typed.Code() != CodeEmptyCart {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestAsReturnsNilForPlainErrors(t *testing.T) {
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("expected nil for untyped error")
	}
	if As(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
