package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrMissingParent is returned when a table's parent table has never
	// been written. The run aborts before touching the child table.
	ErrMissingParent = eris.New("pipeline: required parent table is missing")

	// ErrNoJSON is returned when a generation response has no balanced
	// brace-delimited block.
	ErrNoJSON = eris.New("pipeline: no JSON object in response")

	// ErrEnrichmentExhausted is returned when every attempt for a record
	// failed, on both the primary and fallback model.
	ErrEnrichmentExhausted = eris.New("pipeline: enrichment attempts exhausted")

	// ErrUnknownTable is returned for table names absent from the catalog.
	ErrUnknownTable = eris.New("pipeline: unknown table")
)

// ConfigError marks failures that must abort the whole run before any
// mutation: missing credentials, missing upstream tables, unknown tables.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
