package domain

import (
	"fmt"
)

// Stage names the pipeline state a failure was raised in.
type Stage string

const (
	StageDispatch  Stage = "dispatching"
	StageExtract   Stage = "extracting"
	StageMap       Stage = "mapping"
	StageNormalize Stage = "normalizing"
	StageValidate  Stage = "validating"
)

// Kind is a stable error category. Kinds double as sentinel errors so that
// errors.Is(err, domain.KindNoTextLayer) works on any wrapped ParseError.
type Kind string

const (
	// Gate-level.
	KindUnsupportedType Kind = "UNSUPPORTED_TYPE"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindEmptyPayload    Kind = "EMPTY_PAYLOAD"

	// Extraction-level.
	KindDelimiterDetection Kind = "DELIMITER_DETECTION"
	KindNoTextLayer        Kind = "NO_TEXT_LAYER"
	KindTableStructure     Kind = "TABLE_STRUCTURE"
	KindCorruptDocument    Kind = "CORRUPT_DOCUMENT"

	// Mapping-level.
	KindRequiredFieldUnmappable Kind = "REQUIRED_FIELD_UNMAPPABLE"

	// Row-level.
	KindDateParse          Kind = "DATE_PARSE"
	KindAmountParse        Kind = "AMOUNT_PARSE"
	KindRequiredFieldEmpty Kind = "REQUIRED_FIELD_EMPTY"
	KindSchemaViolation    Kind = "SCHEMA_VIOLATION"

	// Document-level.
	KindRejectionThreshold Kind = "REJECTION_THRESHOLD"
	KindCancelled          Kind = "CANCELLED"
)

func (k Kind) Error() string { return string(k) }

// RowLevel reports whether k only ever rejects a single row.
func (k Kind) RowLevel() bool {
	switch k {
	case KindDateParse, KindAmountParse, KindRequiredFieldEmpty, KindSchemaViolation:
		return true
	}
	return false
}

// ParseError is the single structured failure type of the pipeline.
// Messages never carry raw document content.
type ParseError struct {
	Stage   Stage
	Kind    Kind
	Message string
	Row     int // 1-based data row for row-level kinds, 0 otherwise
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Row > 0 {
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches a Kind sentinel.
func (e *ParseError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds a ParseError with a formatted message.
func Errorf(stage Stage, kind Kind, format string, args ...interface{}) *ParseError {
	return &ParseError{Stage: stage, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a ParseError around an underlying cause.
func Wrap(stage Stage, kind Kind, err error, message string) *ParseError {
	return &ParseError{Stage: stage, Kind: kind, Message: message, Err: err}
}

// RowErrorf builds a row-level ParseError for the given 1-based data row.
func RowErrorf(row int, kind Kind, format string, args ...interface{}) *ParseError {
	return &ParseError{Stage: StageNormalize, Kind: kind, Row: row, Message: fmt.Sprintf(format, args...)}
}
