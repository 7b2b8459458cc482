// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package contact

import (
	"context"
	"testing"
)

type fakeSender struct {
	recipient string
	text      string
	fields    map[string]interface{}
}

func (f *fakeSender) Send(_ context.Context, recipient, text string, fields map[string]interface{}) error {
	f.recipient, f.text, f.fields = recipient, text, fields
	return nil
}

func TestSendPassesExtraFieldsThrough(t *testing.T) {
	sender := &fakeSender{}
	m := New(sender)

	_, err := m.send(context.Background(), map[string]interface{}{
		"recipient": "alice",
		"text":      "running 10 minutes late",
		"urgency":   "high",
		"subject":   "dinner",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.recipient != "alice" || sender.text != "running 10 minutes late" {
		t.Errorf("declared fields mangled: %q, %q", sender.recipient, sender.text)
	}
	if sender.fields["urgency"] != "high" || sender.fields["subject"] != "dinner" {
		t.Errorf("extra fields not passed through: %v", sender.fields)
	}
	if _, leaked := sender.fields["recipient"]; leaked {
		t.Error("declared fields must not be duplicated into the extras")
	}
}

func TestOpenMappingSchemaAllowsUnknownKeys(t *testing.T) {
	m := New(&fakeSender{})
	op := m.Operations()[0]

	args := map[string]interface{}{
		"recipient": "bob",
		"text":      "hello",
		"anything":  42,
	}
	if err := op.Params.Validate(args, true); err != nil {
		t.Errorf("open mapping must accept unknown keys even under strict: %v", err)
	}
	if err := op.Params.Validate(map[string]interface{}{"text": "hi"}, false); err == nil {
		t.Error("missing required recipient must fail validation")
	}
}
