package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
)

type samplePayload struct {
	AccountID    string `json:"account_id" validate:"required"`
	LookbackDays int    `json:"lookback_days" validate:"gte=0"`
}

func TestDecodeJSONBodyValid(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"account_id":"act_1","lookback_days":30}`))

	var payload samplePayload
	if err := DecodeJSONBody(req, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.AccountID != "act_1" || payload.LookbackDays != 30 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"account_id":"act_1","bogus":true}`))

	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	if err == nil {
		t.Fatal("expected an error for unknown fields")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"lookback_days":-1}`))

	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %v", typed.Details())
	}
	if details["account_id"] != "is required" {
		t.Fatalf("unexpected account_id message %q", details["account_id"])
	}
	if details["lookback_days"] != "must be at least 0" {
		t.Fatalf("unexpected lookback_days message %q", details["lookback_days"])
	}
}
