// Package validate is the last gate before a transaction is emitted. Every
// candidate, including ones shaped by model hints, passes through it.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/statement-parser/internal/domain"
)

const schemaURL = "transaction.json"

// Validator checks candidates against the transaction schema. It is safe
// for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the transaction schema.
func New() (*Validator, error) {
	b, err := json.Marshal(transactionSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate stamps source onto the candidate and returns it when it satisfies
// the schema. Failures are SchemaViolation row errors naming the offending
// fields only.
func (v *Validator) Validate(row int, tx domain.Transaction, source domain.Source) (domain.Transaction, error) {
	if !source.Valid() {
		return domain.Transaction{}, schemaError(row, "unknown source %q", source)
	}
	tx.Source = source

	if !tx.Date.IsValid() {
		return domain.Transaction{}, violation(row, "/date")
	}
	if strings.TrimSpace(tx.Description) == "" {
		return domain.Transaction{}, violation(row, "/description")
	}

	b, err := json.Marshal(tx)
	if err != nil {
		return domain.Transaction{}, schemaError(row, "encode candidate")
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Transaction{}, schemaError(row, "decode candidate")
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return domain.Transaction{}, violation(row, failedFields(ve)...)
		}
		return domain.Transaction{}, schemaError(row, "schema check failed")
	}
	return tx, nil
}

func schemaError(row int, format string, args ...interface{}) error {
	return &domain.ParseError{
		Stage:   domain.StageValidate,
		Kind:    domain.KindSchemaViolation,
		Row:     row,
		Message: fmt.Sprintf(format, args...),
	}
}

func violation(row int, fields ...string) error {
	return schemaError(row, "invalid %s", strings.Join(fields, ", "))
}

// failedFields collects the instance locations of the leaf causes.
func failedFields(ve *jsonschema.ValidationError) []string {
	seen := make(map[string]bool)
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			seen[loc] = true
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
