package utils

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrorsFlattensFieldErrors(t *testing.T) {
	type form struct {
		Name string `validate:"required"`
		Age  int    `validate:"min=1"`
	}
	err := validator.New().Struct(form{})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	got := ProcessValidationErrors(err)
	if got["Name"] != "required" {
		t.Fatalf("Name: got %q, want required", got["Name"])
	}
	if got["Age"] != "min" {
		t.Fatalf("Age: got %q, want min", got["Age"])
	}
}

// A malformed body or a wrong-typed field produces a decode error, not a
// validator.ValidationErrors; the helper must report it, never panic.
func TestProcessValidationErrorsDecodeError(t *testing.T) {
	var target struct {
		Count int `json:"count"`
	}
	err := json.Unmarshal([]byte(`{"count":"three"}`), &target)
	if err != nil {
		got := ProcessValidationErrors(err)
		if got["request"] == "" {
			t.Fatalf("expected decode error under request, got %v", got)
		}
	} else {
		t.Fatal("expected unmarshal to fail")
	}

	got := ProcessValidationErrors(errors.New("unexpected EOF"))
	if got["request"] != "unexpected EOF" {
		t.Fatalf("plain error: got %v", got)
	}
}
