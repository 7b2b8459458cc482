// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package contact sends messages to people the assistant knows about. Its
// send operation takes an open mapping: beyond the required recipient and
// text, any extra fields (subject, urgency, attachments) pass through to
// the delivery backend untouched.
package contact

import (
	"context"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// Sender delivers a message to a recipient with arbitrary extra fields.
type Sender interface {
	Send(ctx context.Context, recipient, text string, fields map[string]interface{}) error
}

// Module is the contact capability.
type Module struct {
	sender Sender
}

// New builds the contact module over a delivery backend.
func New(sender Sender) *Module {
	return &Module{sender: sender}
}

func (m *Module) Name() string        { return "contact" }
func (m *Module) Description() string { return "Send a message to a known contact" }
func (m *Module) Complexity() int     { return 2 }

func (m *Module) SystemContext() string {
	return "Messages are delivered verbatim. Include any delivery hints (subject, urgency) as extra fields."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "send_message",
			Description: "Send a message to a contact; extra fields are passed to the delivery backend",
			Params: schema.New().
				Prop("recipient", schema.String("Who to send the message to")).
				Prop("text", schema.String("Message body")).
				Require("recipient", "text").
				OpenMapping(),
			Handler: m.send,
		},
	}
}

func (m *Module) send(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	recipient, _ := args["recipient"].(string)
	text, _ := args["text"].(string)
	if recipient == "" || text == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "recipient and text must not be empty", nil)
	}

	fields := make(map[string]interface{})
	for k, v := range args {
		if k == "recipient" || k == "text" {
			continue
		}
		fields[k] = v
	}

	if err := m.sender.Send(ctx, recipient, text, fields); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to deliver message", err).
			WithRecoverable(true)
	}
	return map[string]interface{}{"recipient": recipient, "sent": true}, nil
}

var _ core.Module = (*Module)(nil)
