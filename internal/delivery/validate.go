package delivery

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed payload.schema.json
var payloadSchemaJSON []byte

const payloadSchemaURL = "https://callrecon.local/schemas/payload.json"

// ErrInvalidPayload wraps schema violations.
var ErrInvalidPayload = errors.New("invalid payload")

// Validator checks payloads against the sink contract.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded payload schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payloadSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse payload schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(payloadSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add payload schema: %w", err)
	}
	sch, err := c.Compile(payloadSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// Validate reports whether p satisfies the sink contract.
func (v *Validator) Validate(p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v.ValidateJSON(data)
}

// ValidateJSON validates an encoded payload.
func (v *Validator) ValidateJSON(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
