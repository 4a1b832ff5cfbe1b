package fasttree

import (
	"os"

	"gopkg.in/yaml.v3"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// Objective names accepted by Options.Objective.
const (
	// ObjectiveBinary trains a boosted binary classifier with uniform
	// +1/-1 targets.
	ObjectiveBinary = "binary"
	// ObjectiveForest trains a bagged random forest; trees are averaged
	// instead of shrunk.
	ObjectiveForest = "forest"
)

// Options contains all training hyperparameters. Zero values are replaced by
// defaults in NewTrainer, so a literal with only the fields you care about is
// enough.
type Options struct {
	// Basic parameters.
	NumTrees      int     `json:"num_trees" yaml:"num_trees"`
	NumLeaves     int     `json:"num_leaves" yaml:"num_leaves"`
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate"`
	MinDocsInLeaf int     `json:"min_docs_in_leaf" yaml:"min_docs_in_leaf"`

	// Split search.
	MinGainToSplit float64 `json:"min_gain_to_split" yaml:"min_gain_to_split"`
	MaxBin         int     `json:"max_bin" yaml:"max_bin"`

	// Sampling. FeatureFraction is the fraction of features considered per
	// split-search round; SplitFraction is the fraction of documents bagged
	// per round; BaggingSize is the number of bagging repetitions (trees)
	// grown per round.
	FeatureFraction       float64 `json:"feature_fraction" yaml:"feature_fraction"`
	SplitFraction         float64 `json:"split_fraction" yaml:"split_fraction"`
	BaggingSize           int     `json:"bagging_size" yaml:"bagging_size"`
	SampleWithReplacement bool    `json:"sample_with_replacement" yaml:"sample_with_replacement"`

	// QuantileSampleCount bounds how many labels are retained per leaf for
	// downstream quantile estimation.
	QuantileSampleCount int `json:"quantile_sample_count" yaml:"quantile_sample_count"`

	// MaxTreeOutput clamps the absolute value of any leaf output. Near-pure
	// leaves otherwise produce outputs that blow up the ensemble score.
	MaxTreeOutput float64 `json:"max_tree_output" yaml:"max_tree_output"`

	// PositiveThreshold: a document is a positive example when its label is
	// >= this value. The default of 1 reproduces the historical "label >= 1"
	// rule; other trainers in the same family use "label > 0", so the
	// threshold is an explicit option rather than a baked-in choice.
	PositiveThreshold float64 `json:"positive_threshold" yaml:"positive_threshold"`

	// Objective selects the training variant: "binary" (default) or
	// "forest".
	Objective string `json:"objective" yaml:"objective"`

	// CategoricalFeatures lists feature indices treated as categorical;
	// their splits route a subset of bin values left rather than a single
	// threshold.
	CategoricalFeatures []int `json:"categorical_features" yaml:"categorical_features"`

	// Early stopping over a held-out validation set.
	EarlyStoppingRounds int    `json:"early_stopping_rounds" yaml:"early_stopping_rounds"`
	Metric              string `json:"metric" yaml:"metric"`

	// Calibration.
	MaxCalibrationExamples int `json:"max_calibration_examples" yaml:"max_calibration_examples"`

	// Other.
	Seed      int64  `json:"seed" yaml:"seed"`
	Verbosity int    `json:"verbosity" yaml:"verbosity"`
	TrainArgs string `json:"train_args" yaml:"train_args"`
}

// DefaultOptions returns an Options with every field set to its default.
func DefaultOptions() Options {
	return applyDefaults(Options{})
}

func applyDefaults(o Options) Options {
	if o.NumTrees == 0 {
		o.NumTrees = 100
	}
	if o.NumLeaves == 0 {
		o.NumLeaves = 20
	}
	if o.LearningRate == 0 {
		o.LearningRate = 0.1
	}
	if o.MinDocsInLeaf == 0 {
		o.MinDocsInLeaf = 10
	}
	if o.MaxBin == 0 {
		o.MaxBin = 255
	}
	if o.FeatureFraction == 0 {
		o.FeatureFraction = 0.7
	}
	if o.SplitFraction == 0 {
		o.SplitFraction = 0.7
	}
	if o.BaggingSize == 0 {
		o.BaggingSize = 1
	}
	if o.QuantileSampleCount == 0 {
		o.QuantileSampleCount = 100
	}
	if o.MaxTreeOutput == 0 {
		o.MaxTreeOutput = 100
	}
	if o.PositiveThreshold == 0 {
		o.PositiveThreshold = 1
	}
	if o.Objective == "" {
		o.Objective = ObjectiveBinary
	}
	if o.Metric == "" {
		o.Metric = "logloss"
	}
	if o.MaxCalibrationExamples == 0 {
		o.MaxCalibrationExamples = 1_000_000
	}
	return o
}

// Validate checks option values and returns a ValidationError for the first
// violation found. It is called by NewTrainer after defaulting.
func (o *Options) Validate() error {
	if o.NumTrees < 1 {
		return groveerrors.NewValidationError("num_trees", "must be >= 1", o.NumTrees)
	}
	if o.NumLeaves < 2 {
		return groveerrors.NewValidationError("num_leaves", "must be >= 2", o.NumLeaves)
	}
	if o.LearningRate <= 0 {
		return groveerrors.NewValidationError("learning_rate", "must be > 0", o.LearningRate)
	}
	if o.MinDocsInLeaf < 1 {
		return groveerrors.NewValidationError("min_docs_in_leaf", "must be >= 1", o.MinDocsInLeaf)
	}
	if o.MaxBin < 2 || o.MaxBin > 255 {
		return groveerrors.NewValidationError("max_bin", "must be in [2, 255]", o.MaxBin)
	}
	if o.FeatureFraction <= 0 || o.FeatureFraction > 1 {
		return groveerrors.NewValidationError("feature_fraction", "must be in (0, 1]", o.FeatureFraction)
	}
	if o.SplitFraction <= 0 || o.SplitFraction > 1 {
		return groveerrors.NewValidationError("split_fraction", "must be in (0, 1]", o.SplitFraction)
	}
	if o.BaggingSize < 1 {
		return groveerrors.NewValidationError("bagging_size", "must be >= 1", o.BaggingSize)
	}
	if o.QuantileSampleCount < 1 {
		return groveerrors.NewValidationError("quantile_sample_count", "must be >= 1", o.QuantileSampleCount)
	}
	if o.MaxTreeOutput <= 0 {
		return groveerrors.NewValidationError("max_tree_output", "must be > 0", o.MaxTreeOutput)
	}
	if o.MinGainToSplit < 0 {
		return groveerrors.NewValidationError("min_gain_to_split", "must be >= 0", o.MinGainToSplit)
	}
	switch o.Objective {
	case ObjectiveBinary, ObjectiveForest:
	default:
		return groveerrors.NewValidationError("objective", "unknown objective", o.Objective)
	}
	switch o.Metric {
	case "logloss", "accuracy", "auc":
	default:
		return groveerrors.NewValidationError("metric", "unknown metric", o.Metric)
	}
	for _, f := range o.CategoricalFeatures {
		if f < 0 {
			return groveerrors.NewValidationError("categorical_features", "feature index must be >= 0", f)
		}
	}
	return nil
}

// LoadOptions reads an Options document from a YAML file. Unset fields are
// filled with defaults; the result is validated.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, groveerrors.Wrapf(err, "failed to read options file %s", path)
	}
	return ParseOptions(data)
}

// ParseOptions parses a YAML Options document, applies defaults and
// validates.
func ParseOptions(data []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, groveerrors.Wrap(err, "failed to parse options")
	}
	o = applyDefaults(o)
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}
