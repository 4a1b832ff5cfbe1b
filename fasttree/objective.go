package fasttree

import (
	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// ObjectiveFunction maps the current ensemble state and the true labels into
// per-document targets for the next tree to fit. Implementations own a
// mutable target buffer of length NumDocs that is overwritten every round;
// callers must not retain the returned slice across rounds.
type ObjectiveFunction interface {
	// ComputeTargets refreshes and returns the per-document target buffer
	// for the given round. scores holds the current ensemble score per
	// document (all zeros in round 0).
	ComputeTargets(round int, scores []float64) []float64

	// TreeWeight returns the output weight for the tree grown in the given
	// round: the learning rate for boosting, a uniform averaging weight for
	// bagged forests.
	TreeWeight(round int) float64

	// Name returns the objective's registered name.
	Name() string
}

// CreateObjectiveFunction builds the objective named by opts.Objective over
// the dataset.
func CreateObjectiveFunction(ds *Dataset, opts Options) (ObjectiveFunction, error) {
	switch opts.Objective {
	case ObjectiveBinary:
		return newBinaryClassificationObjective(ds, opts), nil
	case ObjectiveForest:
		return newRandomForestObjective(ds, opts), nil
	default:
		return nil, groveerrors.NewValidationError("objective", "unknown objective", opts.Objective)
	}
}

// BinaryClassificationObjective produces uniform-magnitude targets: +1 for
// documents whose label is >= PositiveThreshold, -1 otherwise. The magnitude
// does not depend on the current margin; this is deliberately simpler than
// full logistic boosting and is the historical behavior of this trainer
// family. See Options.PositiveThreshold for the >=1 vs >0 discrepancy.
type BinaryClassificationObjective struct {
	ds                *Dataset
	targets           []float64
	positiveThreshold float64
	learningRate      float64
}

func newBinaryClassificationObjective(ds *Dataset, opts Options) *BinaryClassificationObjective {
	return &BinaryClassificationObjective{
		ds:                ds,
		targets:           make([]float64, ds.NumDocs()),
		positiveThreshold: opts.PositiveThreshold,
		learningRate:      opts.LearningRate,
	}
}

// ComputeTargets implements ObjectiveFunction. The targets ignore scores:
// every round refits the same +-1 signal, and the learning rate shrinks each
// tree's contribution.
func (o *BinaryClassificationObjective) ComputeTargets(round int, scores []float64) []float64 {
	labels := o.ds.Labels()
	for i := range o.targets {
		if labels[i] >= o.positiveThreshold {
			o.targets[i] = 1
		} else {
			o.targets[i] = -1
		}
	}
	return o.targets
}

// TreeWeight implements ObjectiveFunction.
func (o *BinaryClassificationObjective) TreeWeight(round int) float64 {
	return o.learningRate
}

// Name implements ObjectiveFunction.
func (o *BinaryClassificationObjective) Name() string { return ObjectiveBinary }

// RandomForestObjective trains a bagged forest: the same uniform +-1 targets
// as binary classification, but trees are combined by averaging rather than
// shrinkage. The per-round document and feature resampling that decorrelates
// the trees is applied by the trainer's bagging policy.
type RandomForestObjective struct {
	inner     *BinaryClassificationObjective
	totalBags int
}

func newRandomForestObjective(ds *Dataset, opts Options) *RandomForestObjective {
	return &RandomForestObjective{
		inner:     newBinaryClassificationObjective(ds, opts),
		totalBags: opts.NumTrees * opts.BaggingSize,
	}
}

// ComputeTargets implements ObjectiveFunction.
func (o *RandomForestObjective) ComputeTargets(round int, scores []float64) []float64 {
	return o.inner.ComputeTargets(round, scores)
}

// TreeWeight implements ObjectiveFunction. Every tree gets the same
// averaging weight over the planned bag count; when training ends short of
// the plan the trainer rescales the weights to the realized tree count.
func (o *RandomForestObjective) TreeWeight(round int) float64 {
	return 1 / float64(o.totalBags)
}

// Name implements ObjectiveFunction.
func (o *RandomForestObjective) Name() string { return ObjectiveForest }
