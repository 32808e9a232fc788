package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document kinds with operator-configurable schemas.
const (
	DocEscrowMetadata = "escrow_metadata"
)

// ErrValidation can be used with errors.Is to detect schema validation failures.
var ErrValidation = errors.New("validation failed")

// Validator checks client-supplied JSON documents against schemas loaded from
// a directory. Each *.json file holds one schema; the file name (minus
// extension) is the document kind it governs. Kinds without a schema accept
// anything, so an empty or missing schema directory disables validation.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator loads and compiles all *.json schema files from schemaDir.
func NewValidator(schemaDir string) (*Validator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://freelanceguard.dev/schemas/" + kind
		schemas[kind], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
	}

	return &Validator{schemas: schemas}, nil
}

// Validate checks doc against the schema for kind. An empty doc always passes;
// clients that send nothing opt out of metadata entirely.
func (v *Validator) Validate(kind, doc string) error {
	if doc == "" {
		return nil
	}
	schema, ok := v.schemas[kind]
	if !ok {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
