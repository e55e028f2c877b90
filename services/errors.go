package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for input rejected before anything is written.
var (
	ErrEmptyBatch       = errors.New("no valid records")
	ErrTooManyRecords   = errors.New("too many records")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMalformedInput   = errors.New("malformed import document")
	ErrImportInProgress = errors.New("another import is in progress")
)

// Kind classifies an import failure the way the admin panel reports it.
type Kind string

const (
	KindInput       Kind = "input"
	KindTransport   Kind = "transport"
	KindApplication Kind = "application"
	KindPersistence Kind = "persistence"
	KindConflict    Kind = "conflict"
)

// InputError wraps an input sentinel with the offending field and value.
type InputError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input: %s: %s (value=%s)", e.Wrapped, e.Field, e.Value)
}

func (e *InputError) Unwrap() error { return e.Wrapped }

// ImportError is what the importer returns for every failed run.
type ImportError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Title is the short heading shown with the error.
func (e *ImportError) Title() string {
	switch e.Kind {
	case KindInput:
		return "Invalid import file"
	case KindTransport:
		return "Network error"
	case KindApplication:
		return "Scraper error"
	case KindPersistence:
		return "Database error"
	case KindConflict:
		return "Import already running"
	default:
		return "Import failed"
	}
}

func inputErr(stage string, err error) *ImportError {
	return &ImportError{Stage: stage, Kind: KindInput, Err: err}
}

func persistenceErr(stage string, err error) *ImportError {
	return &ImportError{Stage: stage, Kind: KindPersistence, Err: err}
}
