// Package core defines the estimator interfaces shared by grove trainers.
package core

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Fitter is a model that can be trained from matrix data. Training may span
// many rounds; implementations check ctx between rounds and stop cleanly.
type Fitter interface {
	Fit(ctx context.Context, X, y mat.Matrix) error
}

// EstimatorState tracks the fit lifecycle of an estimator.
type EstimatorState int

const (
	// NotFitted means Fit has not completed.
	NotFitted EstimatorState = iota
	// Fitted means Fit completed successfully.
	Fitted
)
