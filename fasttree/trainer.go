package fasttree

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core"
	"github.com/grove-ml/grove/metrics"
	groveerrors "github.com/grove-ml/grove/pkg/errors"
	"github.com/grove-ml/grove/pkg/log"
)

// Trainer drives the round loop: per round it resamples documents and
// features per the bagging policy, refreshes targets through the objective,
// grows one tree per bag against the sample, appends it to the ensemble and
// optionally updates the held-out early-stopping state. Rounds are
// sequential; cancellation is checked between rounds.
type Trainer struct {
	opts Options

	ds        *Dataset
	ensemble  *Ensemble
	objective ObjectiveFunction
	scores    []float64
	rng       *rand.Rand
	state     core.EstimatorState

	// Held-out validation set for early stopping and calibration.
	valFeatures [][]float64
	valLabels   []float64
	valScores   []float64

	calTrainer CalibratorTrainer
	calibrator Calibrator
}

// NewTrainer creates a trainer. Zero-valued options are defaulted; the
// result is validated before any training work.
func NewTrainer(opts Options) (*Trainer, error) {
	opts = applyDefaults(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{opts: opts}, nil
}

// SetValidation attaches a held-out set used for the early-stopping metric
// and, when a calibrator trainer is configured, for calibration examples.
func (t *Trainer) SetValidation(X, y mat.Matrix) error {
	xr, xc := X.Dims()
	yr, yc := y.Dims()
	if yc != 1 {
		return groveerrors.NewSchemaError("label", "single float column", "multiple columns")
	}
	if xr != yr {
		return groveerrors.NewDimensionError("Trainer.SetValidation", xr, yr, 0)
	}

	t.valFeatures = make([][]float64, xr)
	t.valLabels = make([]float64, xr)
	for i := 0; i < xr; i++ {
		row := make([]float64, xc)
		for j := 0; j < xc; j++ {
			row[j] = X.At(i, j)
		}
		t.valFeatures[i] = row
		t.valLabels[i] = y.At(i, 0)
	}
	return nil
}

// WithCalibration configures a calibrator trainer invoked after the round
// loop; the resulting calibrator is attached to the Predictor.
func (t *Trainer) WithCalibration(ct CalibratorTrainer) *Trainer {
	t.calTrainer = ct
	return t
}

// Fit builds a binned dataset from matrix input and trains on it. y must be
// a single float column with one row per row of X.
func (t *Trainer) Fit(ctx context.Context, X, y mat.Matrix) (err error) {
	defer groveerrors.Recover(&err, "Trainer.Fit")

	builder := NewDatasetBuilder(t.opts.MaxBin, t.opts.CategoricalFeatures...)
	if err := builder.AppendMatrix(X, y); err != nil {
		return err
	}
	ds, err := builder.Build()
	if err != nil {
		return err
	}
	return t.FitDataset(ctx, ds)
}

// FitDataset trains on an already-binned dataset. The dataset is treated as
// immutable and shared read-only with the split-search workers.
func (t *Trainer) FitDataset(ctx context.Context, ds *Dataset) (err error) {
	defer groveerrors.Recover(&err, "Trainer.FitDataset")

	if ds == nil || ds.NumDocs() == 0 {
		return groveerrors.Wrap(groveerrors.ErrEmptyData, "Trainer.FitDataset")
	}
	for _, f := range t.opts.CategoricalFeatures {
		if f >= ds.NumFeatures() {
			return groveerrors.NewValidationError("categorical_features",
				"feature index out of range", f)
		}
	}
	if len(t.valFeatures) > 0 {
		if got := len(t.valFeatures[0]); got != ds.NumFeatures() {
			return groveerrors.NewDimensionError("Trainer.FitDataset",
				ds.NumFeatures(), got, 1)
		}
	}

	logger := log.GetLoggerWithName("fasttree.trainer")

	t.ds = ds
	t.ensemble = NewEnsemble(ds.NumFeatures())
	t.scores = make([]float64, ds.NumDocs())
	t.rng = rand.New(rand.NewSource(t.opts.Seed))
	t.state = core.NotFitted

	objective, err := CreateObjectiveFunction(ds, t.opts)
	if err != nil {
		return err
	}
	t.objective = objective

	es := NewEarlyStopping(t.opts.EarlyStoppingRounds, t.opts.Metric)
	if es.Enabled && t.valFeatures == nil {
		groveerrors.Warn(groveerrors.Newf("early stopping requested without a validation set; disabled"))
		es.Enabled = false
	}
	if t.valFeatures != nil {
		t.valScores = make([]float64, len(t.valFeatures))
	}

	if t.opts.Verbosity > 0 {
		logger.Info("training started",
			log.OperationKey, "fit",
			log.ModelNameKey, t.objective.Name(),
			log.DocumentsKey, ds.NumDocs(),
			log.FeaturesKey, ds.NumFeatures(),
			log.GroupsKey, ds.NumGroups(),
		)
	}

	for round := 0; round < t.opts.NumTrees; round++ {
		select {
		case <-ctx.Done():
			return groveerrors.Wrapf(ctx.Err(), "training cancelled before round %d", round)
		default:
		}

		targets := t.objective.ComputeTargets(round, t.scores)

		for bag := 0; bag < t.opts.BaggingSize; bag++ {
			docs := t.sampleDocs()
			features := t.sampleFeatures()

			builder := newTreeBuilder(t.ds, t.opts, targets, features, t.rng)
			tree, leafDocs, err := builder.Build(docs)
			if err != nil {
				return err
			}

			weight := t.objective.TreeWeight(round)
			t.ensemble.AddTree(tree, weight)
			t.updateScores(&tree, leafDocs, weight)
			t.updateValScores(&tree, weight)
		}

		if es.Enabled {
			score, err := t.validationMetric()
			if err != nil {
				return err
			}
			if es.Update(round, score) {
				if t.opts.Verbosity > 0 {
					logger.Info("early stopping",
						log.RoundKey, round,
						log.MetricKey, es.Metric,
						log.LossKey, es.BestScore,
					)
				}
				break
			}
		}

		if t.opts.Verbosity > 0 && round%10 == 0 {
			logger.Debug("training progress",
				log.RoundKey, round,
				log.TreesKey, t.ensemble.NumTrees(),
			)
		}
	}

	// Early stopping can end a forest short of the planned tree count; the
	// averaging weights are rescaled to the trees actually grown so the
	// ensemble score stays the mean of tree outputs.
	if t.opts.Objective == ObjectiveForest && t.ensemble.NumTrees() > 0 {
		w := 1 / float64(t.ensemble.NumTrees())
		for i := range t.ensemble.Weights {
			t.ensemble.Weights[i] = w
		}
	}

	if t.calTrainer != nil {
		calibrator, err := t.fitCalibrator()
		if err != nil {
			return err
		}
		t.calibrator = calibrator
	}

	t.state = core.Fitted
	return nil
}

// Ensemble returns the trained ensemble, nil before a successful Fit.
func (t *Trainer) Ensemble() *Ensemble {
	if t.state != core.Fitted {
		return nil
	}
	return t.ensemble
}

// Predictor wraps the trained ensemble, the feature count and the training
// arguments as an immutable scoring object, attaching the calibrator when
// one was fitted.
func (t *Trainer) Predictor() (*Predictor, error) {
	if t.state != core.Fitted {
		return nil, groveerrors.NewNotFittedError("fasttree.Trainer", "Predictor")
	}

	args := t.opts.TrainArgs
	if args == "" {
		if data, err := json.Marshal(t.opts); err == nil {
			args = string(data)
		}
	}

	p := NewPredictor(t.ensemble, args)
	p.calibrator = t.calibrator
	return p, nil
}

// sampleDocs draws the per-round bagging sample of documents, a
// SplitFraction-sized subset with or without replacement.
func (t *Trainer) sampleDocs() []int {
	n := t.ds.NumDocs()
	k := int(math.Round(t.opts.SplitFraction * float64(n)))
	if k < 1 {
		k = 1
	}

	var docs []int
	if t.opts.SampleWithReplacement {
		docs = make([]int, k)
		for i := range docs {
			docs[i] = t.rng.Intn(n)
		}
	} else {
		if k > n {
			k = n
		}
		docs = t.rng.Perm(n)[:k]
	}
	sort.Ints(docs)
	return docs
}

// sampleFeatures draws the FeatureFraction-sized subset of features used for
// split search this round, ascending for a deterministic reduction order.
func (t *Trainer) sampleFeatures() []int {
	n := t.ds.NumFeatures()
	k := int(math.Round(t.opts.FeatureFraction * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	features := t.rng.Perm(n)[:k]
	sort.Ints(features)
	return features
}

func (t *Trainer) updateScores(tree *Tree, leafDocs map[int32][]int, weight float64) {
	for node, docs := range leafDocs {
		delta := weight * tree.Nodes[node].LeafValue
		for _, doc := range docs {
			t.scores[doc] += delta
		}
	}
}

func (t *Trainer) updateValScores(tree *Tree, weight float64) {
	for i, features := range t.valFeatures {
		t.valScores[i] += weight * tree.Predict(features)
	}
}

// validationMetric evaluates the configured metric over the held-out set.
func (t *Trainer) validationMetric() (float64, error) {
	probs := make([]float64, len(t.valScores))
	labels := make([]float64, len(t.valLabels))
	for i, s := range t.valScores {
		probs[i] = stableSigmoid(s)
		if t.valLabels[i] >= t.opts.PositiveThreshold {
			labels[i] = 1
		}
	}

	switch t.opts.Metric {
	case "accuracy":
		return metrics.Accuracy(labels, probs)
	case "auc":
		return metrics.AUC(labels, probs)
	default:
		return metrics.LogLoss(labels, probs)
	}
}

// fitCalibrator trains the configured calibrator on held-out examples when a
// validation set is attached, otherwise on the training set, bounded by
// MaxCalibrationExamples.
func (t *Trainer) fitCalibrator() (Calibrator, error) {
	var scores, labels []float64

	if t.valFeatures != nil {
		scores = t.valScores
		labels = t.valLabels
	} else {
		scores = make([]float64, t.ds.NumDocs())
		labels = t.ds.Labels()
		for doc := range scores {
			scores[doc] = t.scoreBinned(doc)
		}
	}

	limit := t.opts.MaxCalibrationExamples
	if len(scores) > limit {
		scores = scores[:limit]
		labels = labels[:limit]
	}

	binary := make([]float64, len(labels))
	for i, l := range labels {
		if l >= t.opts.PositiveThreshold {
			binary[i] = 1
		}
	}
	return t.calTrainer.Train(scores, binary)
}

// scoreBinned routes a training document through the ensemble using its bin
// values; raw feature vectors are not retained by the binned dataset.
func (t *Trainer) scoreBinned(doc int) float64 {
	score := 0.0
	for i := range t.ensemble.Trees {
		score += t.ensemble.Weights[i] * predictBinned(&t.ensemble.Trees[i], t.ds, doc)
	}
	return score
}

func predictBinned(tree *Tree, ds *Dataset, doc int) float64 {
	nodeIdx := int32(0)
	for nodeIdx >= 0 && int(nodeIdx) < len(tree.Nodes) {
		node := &tree.Nodes[nodeIdx]
		switch node.Kind {
		case LeafNode:
			return node.LeafValue
		case NumericalNode:
			if uint32(ds.Bin(int(node.SplitFeature), doc)) <= node.BinThreshold {
				nodeIdx = node.LeftChild
			} else {
				nodeIdx = node.RightChild
			}
		case CategoricalNode:
			if containsBin(node.Categories, uint32(ds.Bin(int(node.SplitFeature), doc))) {
				nodeIdx = node.LeftChild
			} else {
				nodeIdx = node.RightChild
			}
		}
	}
	return 0
}
