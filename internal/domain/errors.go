package domain

import (
	"fmt"
	"strings"
)

// ValidationKind identifies why a batch was rejected.
type ValidationKind string

const (
	KindMissingColumns ValidationKind = "missing_columns"
	KindEmptyBatch     ValidationKind = "empty_batch"
	KindTypeError      ValidationKind = "type_error"
)

// ValidationError rejects a batch before any row is scored.
// Its message is safe to show to the user verbatim.
type ValidationError struct {
	Kind ValidationKind `json:"kind"`

	// Columns lists every absent column for KindMissingColumns.
	Columns []string `json:"columns,omitempty"`

	// Column, Row and Detail locate a KindTypeError. Row is 1-based over data rows.
	Column string `json:"column,omitempty"`
	Row    int    `json:"row,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingColumns:
		return "missing required columns: " + strings.Join(e.Columns, ", ")
	case KindEmptyBatch:
		return "batch contains no rows"
	case KindTypeError:
		return fmt.Sprintf("column %s: row %d: %s", e.Column, e.Row, e.Detail)
	default:
		return "invalid batch"
	}
}

// ProcessingError is an unexpected failure on an otherwise valid batch.
// The batch is discarded; only a generic message reaches the user.
type ProcessingError struct {
	Stage string
	Row   int
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: row %d: %v", e.Stage, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
