package errors

import (
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ItemNotFoundError indicates a requested configuration item is absent from
// the fetched set. The item fails; the run continues.
type ItemNotFoundError struct {
	Name string
}

// NewItemNotFoundError constructs an ItemNotFoundError.
func NewItemNotFoundError(name string) error {
	return &ItemNotFoundError{Name: name}
}

func (e *ItemNotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("configuration item not found: %s", e.Name)
}

// ExtractionError indicates the package document could not be parsed or its
// script settings did not have the expected shape.
type ExtractionError struct {
	Item string
	Err  error
}

// NewExtractionError constructs an ExtractionError.
func NewExtractionError(item string, err error) error {
	return &ExtractionError{Item: item, Err: err}
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Item != "" {
		return fmt.Sprintf("extraction error for %s: %v", e.Item, e.Err)
	}
	return fmt.Sprintf("extraction error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WriteError indicates the package document rewrite failed. The original
// document is preserved untouched.
type WriteError struct {
	Item string
	Err  error
}

// NewWriteError constructs a WriteError.
func NewWriteError(item string, err error) error {
	return &WriteError{Item: item, Err: err}
}

func (e *WriteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Item != "" {
		return fmt.Sprintf("write error for %s: %v", e.Item, e.Err)
	}
	return fmt.Sprintf("write error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PersistError indicates the management service rejected an updated item.
// The next run re-detects the same drift.
type PersistError struct {
	Item string
	Err  error
}

// NewPersistError constructs a PersistError.
func NewPersistError(item string, err error) error {
	return &PersistError{Item: item, Err: err}
}

func (e *PersistError) Error() string {
	if e == nil {
		return ""
	}
	if e.Item != "" {
		return fmt.Sprintf("persist error for %s: %v", e.Item, e.Err)
	}
	return fmt.Sprintf("persist error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *PersistError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TimeoutError indicates a transport operation exceeded its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

// NewTimeoutError constructs a TimeoutError for the named operation.
func NewTimeoutError(op string, err error) error {
	return &TimeoutError{Op: op, Err: err}
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("timeout: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *TimeoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
