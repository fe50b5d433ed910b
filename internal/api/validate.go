package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed submit_schema.json
var submitSchemaJSON []byte

const submitSchemaURL = "submit_schema.json"

var submitSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(submitSchemaURL, bytes.NewReader(submitSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add submit schema: %w", err)
	}
	return compiler.Compile(submitSchemaURL)
})

// ValidateSubmitBody checks the shape of a raw submit request before it is
// decoded. Field-level rules (ranges, export windows) are enforced when the
// job is admitted.
func ValidateSubmitBody(data []byte) error {
	schema, err := submitSchema()
	if err != nil {
		return fmt.Errorf("compile submit schema: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("request body does not match schema: %w", err)
	}
	return nil
}
