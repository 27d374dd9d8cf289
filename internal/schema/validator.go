// Package schema validates wire documents against JSON Schemas: the event
// envelope mirrored to Kafka and the body of a synthesis request.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("schema validation failed")

const (
	envelopeURL   = "mem://fish-assistant/event.json"
	synthesizeURL = "mem://fish-assistant/synthesize.json"
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["topic", "ts_ms", "corr_id"],
  "properties": {
    "topic":   {"type": "string", "minLength": 1, "pattern": "^[a-z]+(\\.[a-z_]+)+$"},
    "ts_ms":   {"type": "integer", "minimum": 0},
    "corr_id": {"type": "string", "pattern": "^[A-Za-z0-9_-]{1,128}$"},
    "payload": {}
  }
}`

const synthesizeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["text"],
  "additionalProperties": false,
  "properties": {
    "text":  {"type": "string", "minLength": 1, "maxLength": 5000},
    "voice": {"type": "string", "maxLength": 64}
  }
}`

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	envelope   *jsonschema.Schema
	synthesize *jsonschema.Schema
}

// New compiles the built-in schemas.
func New() (*Validator, error) {
	envelope, err := compile(envelopeURL, envelopeSchema)
	if err != nil {
		return nil, err
	}
	synthesize, err := compile(synthesizeURL, synthesizeSchema)
	if err != nil {
		return nil, err
	}
	return &Validator{envelope: envelope, synthesize: synthesize}, nil
}

// MustNew is New for package-level wiring; it panics on a broken schema.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

func compile(url, doc string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return s, nil
}

// ValidateEnvelope checks a marshalled event envelope.
func (v *Validator) ValidateEnvelope(raw []byte) error {
	return validate(v.envelope, "event", raw)
}

// ValidateSynthesize checks the body of a synthesis request.
func (v *Validator) ValidateSynthesize(raw []byte) error {
	return validate(v.synthesize, "synthesize request", raw)
}

func validate(s *jsonschema.Schema, what string, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %s is not JSON: %v", ErrInvalid, what, err)
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s: %s", ErrInvalid, what, detail(ve))
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalid, what, err)
	}
	return nil
}

// detail returns the deepest cause, which names the offending field.
func detail(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
