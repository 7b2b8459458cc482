package schema

import (
	"encoding/json"
	"testing"

	"github.com/tom-assistant/tom/pkg/errors"
)

func reminderSchema() *Object {
	return New().
		Prop("reminder_text", String("What to remind about")).
		Prop("reminder_datetime", String("When, as YYYY-MM-DD HH:MM:SS")).
		Prop("reminder_recipient", String("Who to remind")).
		Require("reminder_text", "reminder_datetime", "reminder_recipient")
}

func TestValidateMissingRequired(t *testing.T) {
	err := reminderSchema().Validate(map[string]interface{}{
		"reminder_text": "buy bread",
	}, false)
	if !errors.HasCode(err, errors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestValidateStrictRejectsUnknownKey(t *testing.T) {
	args := map[string]interface{}{
		"reminder_text":      "buy bread",
		"reminder_datetime":  "2026-08-30 09:00:00",
		"reminder_recipient": "me",
		"urgency":            "high",
	}
	if err := reminderSchema().Validate(args, false); err != nil {
		t.Fatalf("lenient validation should pass, got %v", err)
	}
	if err := reminderSchema().Validate(args, true); !errors.HasCode(err, errors.CodeInvalidArgument) {
		t.Fatalf("strict validation should reject unknown key, got %v", err)
	}
}

func TestValidateOpenMapping(t *testing.T) {
	contact := New().
		Prop("recipient", String("Recipient name")).
		Require("recipient").
		OpenMapping()

	args := map[string]interface{}{
		"recipient": "alice",
		"subject":   "dinner",
		"body":      "see you at 8",
	}
	if err := contact.Validate(args, true); err != nil {
		t.Fatalf("open mapping should accept undeclared keys, got %v", err)
	}
	if err := contact.Validate(map[string]interface{}{"subject": "x"}, true); err == nil {
		t.Fatal("open mapping should still require declared required keys")
	}
}

func TestValidateTypes(t *testing.T) {
	obj := New().
		Prop("latitude", Number("Latitude")).
		Prop("limit", Integer("Max results")).
		Prop("day", StringEnum("Forecast day", "today", "tomorrow")).
		Prop("verbose", Boolean("Extra detail")).
		Prop("tags", Array("Tags", String("")))

	cases := []struct {
		name string
		args map[string]interface{}
		ok   bool
	}{
		{"valid", map[string]interface{}{"latitude": 48.85, "limit": float64(3), "day": "today", "verbose": true, "tags": []interface{}{"a"}}, true},
		{"float for integer", map[string]interface{}{"limit": 2.5}, false},
		{"bad enum", map[string]interface{}{"day": "yesterday"}, false},
		{"string for number", map[string]interface{}{"latitude": "48.85"}, false},
		{"string for bool", map[string]interface{}{"verbose": "yes"}, false},
		{"scalar for array", map[string]interface{}{"tags": "a"}, false},
	}
	for _, tc := range cases {
		err := obj.Validate(tc.args, false)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestJSONSchemaDeterministic(t *testing.T) {
	obj := reminderSchema()

	a, err := json.Marshal(obj.JSONSchema())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	b, err := json.Marshal(obj.JSONSchema())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(a) != string(b) {
		t.Error("JSONSchema rendering is not deterministic")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(a, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["type"] != "object" {
		t.Errorf("expected object schema, got %v", decoded["type"])
	}
	if _, ok := decoded["properties"].(map[string]interface{})["reminder_text"]; !ok {
		t.Error("missing reminder_text property")
	}
}
