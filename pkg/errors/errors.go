// Package errors provides the error handling and warning system used across
// grove. It defines structured error types for the trainer's failure taxonomy
// (schema, data, format, numeric) together with thin wrappers around
// cockroachdb/errors so call sites get stack traces for free.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("grove-warning: %v\n", w)
	}
	// zerolog warn hook, lazily wired to avoid an import cycle with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a non-fatal warning through the configured handler.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// SchemaError reports a training-input column that violates the expected
// shape or type. It is raised at the API boundary before any training work
// starts and always names the violated precondition.
type SchemaError struct {
	Column   string // "label", "features", "weight", "group"
	Expected string
	Got      string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("grove: invalid schema for %s column: expected %s, got %s", e.Column, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("expected", e.Expected).
		Str("got", e.Got).
		Str("type", "SchemaError")
}

// NewSchemaError creates a SchemaError with a stack trace attached.
func NewSchemaError(column, expected, got string) error {
	err := &SchemaError{Column: column, Expected: expected, Got: got}
	return errors.WithStack(err)
}

// DataError reports training data that is structurally valid but unusable:
// an empty dataset, non-finite labels or weights, ragged group boundaries.
// It aborts the run with no partial ensemble.
type DataError struct {
	Op     string
	Reason string
	Doc    int // offending document index, -1 when not applicable
}

func (e *DataError) Error() string {
	if e.Doc >= 0 {
		return fmt.Sprintf("grove: %s: %s (document %d)", e.Op, e.Reason, e.Doc)
	}
	return fmt.Sprintf("grove: %s: %s", e.Op, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Int("document", e.Doc).
		Str("type", "DataError")
}

// NewDataError creates a DataError with a stack trace attached.
func NewDataError(op, reason string, doc int) error {
	err := &DataError{Op: op, Reason: reason, Doc: doc}
	return errors.WithStack(err)
}

// FormatError reports a serialized model that cannot be loaded: unknown
// signature, version outside the compatibility window, or a truncated or
// corrupt stream. Loads never silently coerce; they fail naming the version
// found and the supported range.
type FormatError struct {
	Op           string
	Signature    string
	FoundVersion uint32
	MinSupported uint32
	MaxSupported uint32
	Reason       string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("grove: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("grove: %s: stored version %d outside supported range [%d, %d]",
		e.Op, e.FoundVersion, e.MinSupported, e.MaxSupported)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *FormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("signature", e.Signature).
		Uint32("found_version", e.FoundVersion).
		Uint32("min_supported", e.MinSupported).
		Uint32("max_supported", e.MaxSupported).
		Str("reason", e.Reason).
		Str("type", "FormatError")
}

// NewFormatError creates a FormatError with a stack trace attached.
func NewFormatError(op, reason string) error {
	err := &FormatError{Op: op, Reason: reason}
	return errors.WithStack(err)
}

// NewVersionRangeError creates a FormatError describing a stored version
// outside the loader's compatibility window.
func NewVersionRangeError(op string, found, minSupported, maxSupported uint32) error {
	err := &FormatError{Op: op, FoundVersion: found, MinSupported: minSupported, MaxSupported: maxSupported}
	return errors.WithStack(err)
}

// ValidationError reports an option value that fails validation before
// training starts.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("grove: validation failed for option '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// NotFittedError is returned when Score, Save or Predictor is requested from
// a trainer whose Fit has not completed successfully.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("grove: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError reports an input whose dimensions disagree with the fitted
// model or with a paired input.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("grove: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports NaN/Inf contamination in gradient or
// score buffers. Leaf-output overflow is not an error; it is clamped in
// place (see ClipValue).
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("grove: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("iteration", e.Iteration).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a
// stack trace attached.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error variables
//
// ===========================================================================

var (
	// ErrEmptyData is returned when a training call receives no documents.
	ErrEmptyData = New("empty data")

	// ErrTruncatedStream is returned when a serialized model ends early.
	ErrTruncatedStream = New("truncated stream")
)
