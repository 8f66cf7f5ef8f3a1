package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/streamkit/errors"
)

func TestValidatorNonNegative(t *testing.T) {
	v := New()
	v.NonNegative("high_water_mark", 0)
	if v.HasErrors() {
		t.Error("expected zero to be accepted")
	}

	v2 := New()
	v2.NonNegative("high_water_mark", -1)
	if !v2.HasErrors() {
		t.Error("expected error for negative value")
	}
}

func TestValidatorStreamID(t *testing.T) {
	v := New()
	v.StreamID("id", uuid.NewString())
	if v.HasErrors() {
		t.Errorf("expected no errors for valid UUID, got %v", v.Errors())
	}

	v2 := New()
	v2.StreamID("id", "")
	if v2.HasErrors() {
		t.Error("expected empty id to be skipped")
	}

	v3 := New()
	v3.StreamID("id", "not-a-uuid")
	if !v3.HasErrors() {
		t.Error("expected error for invalid UUID")
	}

	v4 := New()
	v4.StreamID("id", uuid.Nil.String())
	if !v4.HasErrors() {
		t.Error("expected error for nil UUID")
	}
}

func TestValidatorOneOf(t *testing.T) {
	v := New()
	v.OneOf("format", "json", []string{"json", "console"})
	if v.HasErrors() {
		t.Error("expected no error for valid oneOf value")
	}

	v2 := New()
	v2.OneOf("format", "xml", []string{"json", "console"})
	if !v2.HasErrors() {
		t.Error("expected error for invalid oneOf value")
	}
}

func TestValidatorCustom(t *testing.T) {
	v := New()
	v.Custom(false, "chunk", "custom error")
	if !v.HasErrors() {
		t.Fatal("expected error for false condition")
	}
	if v.Errors()[0].Message != "custom error" {
		t.Errorf("expected 'custom error', got %q", v.Errors()[0].Message)
	}
}

func TestValidatorValidate(t *testing.T) {
	if New().NonNegative("a", 1).Validate() != nil {
		t.Error("expected nil for valid input")
	}

	appErr := New().NonNegative("high_water_mark", -1).NonNegative("size", -5).Validate()
	if appErr == nil {
		t.Fatal("expected error")
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "high_water_mark") || !strings.Contains(appErr.Message, "size") {
		t.Errorf("expected both fields in message, got %q", appErr.Message)
	}
	if _, ok := appErr.Details["fields"]; !ok {
		t.Error("expected field details")
	}
}

func TestValidatorChaining(t *testing.T) {
	v := New()
	if v.NonNegative("a", 1).OneOf("b", "x", []string{"x"}) != v {
		t.Error("expected chaining to return same validator")
	}
}

func TestStructValidate(t *testing.T) {
	type opts struct {
		HighWaterMark int `mapstructure:"high_water_mark" validate:"gte=0"`
		Name          string
	}

	if err := Validate(opts{HighWaterMark: 0}); err != nil {
		t.Errorf("expected valid, got %v", err)
	}

	err := Validate(opts{HighWaterMark: -3})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "high_water_mark: must be at least 0") {
		t.Errorf("unexpected message %q", err.Error())
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatal("expected an AppError")
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "high_water_mark" {
		t.Errorf("unexpected field details %v", appErr.Details["fields"])
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"HighWaterMark": "high_water_mark",
		"ObjectMode":    "object_mode",
		"ID":            "id",
		"name":          "name",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
