package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const envelopeSchemaURL = "apm://schemas/backlog.json"

// envelopeSchema only pins the file shape. Per-task rules live in
// ValidateTask so every violation is reported with a readable message.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array"
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func backlogSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
			compileErr = fmt.Errorf("adding backlog schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(envelopeSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling backlog schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ValidateEnvelope checks that doc has the {"tasks": [...]} shape. doc must
// be the generic decoding of a JSON document. Failures are returned as a
// *ValidationError listing each leaf problem.
func ValidateEnvelope(doc any) error {
	schema, err := backlogSchema()
	if err != nil {
		return err
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validating backlog envelope: %w", err)
	}
	var msgs []string
	collectSchemaErrors(ve, &msgs)
	if len(msgs) == 0 {
		msgs = append(msgs, ve.Message)
	}
	return &ValidationError{Errors: msgs}
}

func collectSchemaErrors(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("Invalid format: %s %s", loc, ve.Message))
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaErrors(cause, out)
	}
}

// TasksFromDocument validates the envelope and returns the raw task list.
func TasksFromDocument(doc any) ([]any, error) {
	if err := ValidateEnvelope(doc); err != nil {
		return nil, err
	}
	obj := doc.(map[string]any)
	return obj["tasks"].([]any), nil
}
