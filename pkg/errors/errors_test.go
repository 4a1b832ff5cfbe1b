package errors

import (
	"math"
	"strings"
	"testing"
)

func TestStructuredErrorsMatchWithAs(t *testing.T) {
	var schemaErr *SchemaError
	if !As(NewSchemaError("label", "single float column", "two columns"), &schemaErr) {
		t.Error("As failed for SchemaError")
	} else if schemaErr.Column != "label" {
		t.Errorf("Column = %q, want %q", schemaErr.Column, "label")
	}

	var dataErr *DataError
	if !As(NewDataError("Build", "non-finite label", 3), &dataErr) {
		t.Error("As failed for DataError")
	} else if dataErr.Doc != 3 {
		t.Errorf("Doc = %d, want 3", dataErr.Doc)
	}

	var formatErr *FormatError
	if !As(NewFormatError("Load", "unknown model signature"), &formatErr) {
		t.Error("As failed for FormatError")
	}

	var valErr *ValidationError
	if !As(NewValidationError("num_trees", "must be >= 1", 0), &valErr) {
		t.Error("As failed for ValidationError")
	} else if valErr.ParamName != "num_trees" {
		t.Errorf("ParamName = %q, want %q", valErr.ParamName, "num_trees")
	}

	var notFitted *NotFittedError
	if !As(NewNotFittedError("Trainer", "Predictor"), &notFitted) {
		t.Error("As failed for NotFittedError")
	}

	var dimErr *DimensionError
	if !As(NewDimensionError("Score", 3, 5, 1), &dimErr) {
		t.Error("As failed for DimensionError")
	} else if dimErr.Expected != 3 || dimErr.Got != 5 {
		t.Errorf("dims = (%d, %d), want (3, 5)", dimErr.Expected, dimErr.Got)
	}
}

func TestErrorsSurviveWrapping(t *testing.T) {
	err := Wrap(NewDataError("Build", "non-finite label", 3), "outer context")

	var dataErr *DataError
	if !As(err, &dataErr) {
		t.Fatal("wrapped DataError not found with As")
	}
	if dataErr.Doc != 3 {
		t.Errorf("Doc = %d, want 3", dataErr.Doc)
	}
	if !strings.Contains(err.Error(), "outer context") {
		t.Errorf("message %q missing wrap context", err.Error())
	}
}

func TestSentinelErrors(t *testing.T) {
	err := Wrap(ErrEmptyData, "Trainer.Fit")
	if !Is(err, ErrEmptyData) {
		t.Error("wrapped ErrEmptyData not matched with Is")
	}
	if Is(err, ErrTruncatedStream) {
		t.Error("ErrEmptyData must not match ErrTruncatedStream")
	}
}

func TestVersionRangeError(t *testing.T) {
	err := NewVersionRangeError("LoadPredictor", 1, 2, 3)

	var formatErr *FormatError
	if !As(err, &formatErr) {
		t.Fatal("As failed for FormatError")
	}
	if formatErr.FoundVersion != 1 || formatErr.MinSupported != 2 || formatErr.MaxSupported != 3 {
		t.Errorf("version fields = (%d, %d, %d), want (1, 2, 3)",
			formatErr.FoundVersion, formatErr.MinSupported, formatErr.MaxSupported)
	}
	msg := err.Error()
	if !strings.Contains(msg, "1") || !strings.Contains(msg, "[2, 3]") {
		t.Errorf("message %q should name the found version and supported range", msg)
	}
}

func TestWarningHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) { captured = w })
	defer SetWarningHandler(nil)

	warning := Newf("something odd")
	Warn(warning)
	if captured == nil || captured.Error() != "something odd" {
		t.Errorf("captured = %v, want the emitted warning", captured)
	}
}

func TestSafeDivide(t *testing.T) {
	tests := []struct {
		num, denom, want float64
	}{
		{10, 2, 5},
		{1, 0, 0},
		{1, 1e-12, 0},
		{-6, 3, -2},
	}
	for _, tt := range tests {
		if got := SafeDivide(tt.num, tt.denom); got != tt.want {
			t.Errorf("SafeDivide(%v, %v) = %v, want %v", tt.num, tt.denom, got, tt.want)
		}
	}
}

func TestClipValue(t *testing.T) {
	tests := []struct {
		value, min, max, want float64
	}{
		{5, -1, 1, 1},
		{-5, -1, 1, -1},
		{0.5, -1, 1, 0.5},
	}
	for _, tt := range tests {
		if got := ClipValue(tt.value, tt.min, tt.max); got != tt.want {
			t.Errorf("ClipValue(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("scores", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("finite values: %v", err)
	}

	err := CheckNumericalStability("scores", []float64{1, math.NaN()}, 7)
	if err == nil {
		t.Fatal("expected error for NaN")
	}
	var instErr *NumericalInstabilityError
	if !As(err, &instErr) {
		t.Fatalf("error type = %T, want *NumericalInstabilityError", err)
	}
	if instErr.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", instErr.Iteration)
	}

	if err := CheckScalar("leaf", math.Inf(1), 0); err == nil {
		t.Error("expected error for Inf scalar")
	}
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "test.Operation")
		panic("boom")
	}

	err := run()
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	var panicErr *PanicError
	if !As(err, &panicErr) {
		t.Fatalf("error type = %T, want *PanicError", err)
	}
	if panicErr.Operation != "test.Operation" {
		t.Errorf("Operation = %q, want %q", panicErr.Operation, "test.Operation")
	}
	if panicErr.PanicValue != "boom" {
		t.Errorf("PanicValue = %v, want boom", panicErr.PanicValue)
	}
	if panicErr.StackTrace == "" {
		t.Error("StackTrace should be captured")
	}
}

func TestRecoverNoPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "test.Operation")
		return nil
	}
	if err := run(); err != nil {
		t.Errorf("Recover without panic: %v", err)
	}
}
