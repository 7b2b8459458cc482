// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema describes and validates operation parameters.
//
// An operation's parameter schema is a flat or nested mapping of named, typed
// arguments. It renders to JSON Schema for the language-model gateway and
// validates the argument payloads the gateway sends back.
package schema

import (
	"fmt"
	"math"

	"github.com/tom-assistant/tom/pkg/errors"
)

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Property describes a single named argument.
type Property struct {
	Type        Type
	Description string
	Enum        []string  // allowed values, string type only
	Items       *Property // element schema, array type only
	Nested      *Object   // nested schema, object type only
}

// Object describes the full argument mapping of one operation.
type Object struct {
	Properties map[string]*Property
	Required   []string
	// Open marks a schema-less operation variant: unknown keys are accepted
	// even under strict validation, and only the required keys are checked.
	Open bool
}

// New creates an empty object schema.
func New() *Object {
	return &Object{Properties: make(map[string]*Property)}
}

// Prop adds a property and returns the object for chaining.
func (o *Object) Prop(name string, p *Property) *Object {
	o.Properties[name] = p
	return o
}

// Require marks properties as required and returns the object for chaining.
func (o *Object) Require(names ...string) *Object {
	o.Required = append(o.Required, names...)
	return o
}

// OpenMapping marks the schema as an open mapping and returns it for chaining.
func (o *Object) OpenMapping() *Object {
	o.Open = true
	return o
}

// String creates a string property.
func String(description string) *Property {
	return &Property{Type: TypeString, Description: description}
}

// StringEnum creates a string property restricted to the given values.
func StringEnum(description string, values ...string) *Property {
	return &Property{Type: TypeString, Description: description, Enum: values}
}

// Integer creates an integer property.
func Integer(description string) *Property {
	return &Property{Type: TypeInteger, Description: description}
}

// Number creates a number property.
func Number(description string) *Property {
	return &Property{Type: TypeNumber, Description: description}
}

// Boolean creates a boolean property.
func Boolean(description string) *Property {
	return &Property{Type: TypeBoolean, Description: description}
}

// Array creates an array property with the given element schema.
func Array(description string, items *Property) *Property {
	return &Property{Type: TypeArray, Description: description, Items: items}
}

// Nested creates an object property with the given nested schema.
func Nested(description string, inner *Object) *Property {
	return &Property{Type: TypeObject, Description: description, Nested: inner}
}

// JSONSchema renders the object as a JSON Schema mapping suitable for a
// function-calling gateway. The rendering is deterministic for a given
// schema: encoding/json serializes map keys in sorted order.
func (o *Object) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(o.Properties))
	for name, p := range o.Properties {
		props[name] = p.jsonSchema()
	}
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(o.Required) > 0 {
		required := make([]string, len(o.Required))
		copy(required, o.Required)
		out["required"] = required
	}
	if o.Open {
		out["additionalProperties"] = true
	}
	return out
}

func (p *Property) jsonSchema() map[string]interface{} {
	out := map[string]interface{}{
		"type": string(p.Type),
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		enum := make([]string, len(p.Enum))
		copy(enum, p.Enum)
		out["enum"] = enum
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	if p.Nested != nil {
		out["properties"] = p.Nested.JSONSchema()["properties"]
	}
	return out
}

// Validate checks an argument payload against the schema.
//
// Required properties must always be present. Under strict validation,
// unknown keys are rejected and every declared property is mandatory; an Open
// schema skips the unknown-key check. All violations carry
// errors.CodeInvalidArgument.
func (o *Object) Validate(args map[string]interface{}, strict bool) error {
	for _, name := range o.Required {
		if _, ok := args[name]; !ok {
			return errors.New(errors.CodeInvalidArgument,
				fmt.Sprintf("missing required argument %q", name), nil).
				WithContext("argument", name)
		}
	}

	if strict {
		for name := range o.Properties {
			if _, ok := args[name]; !ok {
				return errors.New(errors.CodeInvalidArgument,
					fmt.Sprintf("strict operation requires argument %q", name), nil).
					WithContext("argument", name)
			}
		}
		if !o.Open {
			for name := range args {
				if _, ok := o.Properties[name]; !ok {
					return errors.New(errors.CodeInvalidArgument,
						fmt.Sprintf("unknown argument %q", name), nil).
						WithContext("argument", name)
				}
			}
		}
	}

	for name, value := range args {
		p, ok := o.Properties[name]
		if !ok {
			continue
		}
		if err := p.validate(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Property) validate(name string, value interface{}) error {
	if value == nil {
		return nil
	}
	switch p.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return typeError(name, "string", value)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return errors.New(errors.CodeInvalidArgument,
				fmt.Sprintf("argument %q must be one of %v", name, p.Enum), nil).
				WithContext("argument", name).
				WithContext("value", s)
		}
	case TypeInteger:
		// JSON numbers arrive as float64; accept integral values only.
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != math.Trunc(v) {
				return typeError(name, "integer", value)
			}
		default:
			return typeError(name, "integer", value)
		}
	case TypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return typeError(name, "number", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeError(name, "boolean", value)
		}
	case TypeArray:
		items, ok := value.([]interface{})
		if !ok {
			return typeError(name, "array", value)
		}
		if p.Items != nil {
			for i, item := range items {
				if err := p.Items.validate(fmt.Sprintf("%s[%d]", name, i), item); err != nil {
					return err
				}
			}
		}
	case TypeObject:
		nested, ok := value.(map[string]interface{})
		if !ok {
			return typeError(name, "object", value)
		}
		if p.Nested != nil {
			return p.Nested.Validate(nested, false)
		}
	}
	return nil
}

func typeError(name, want string, value interface{}) error {
	return errors.New(errors.CodeInvalidArgument,
		fmt.Sprintf("argument %q must be a %s, got %T", name, want, value), nil).
		WithContext("argument", name)
}
