// Standard attribute keys for trainer telemetry. Keys follow a hierarchical
// naming convention ("data.documents", "train.round") so structured logs can
// be filtered by prefix.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the kind of model ("FastTreeBinary",
	// "FastForest").
	ModelNameKey = "model.name"

	// OperationKey names the operation being performed ("fit", "score",
	// "save", "load").
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	ComponentKey = "ml.component"
)

// Data shape.
const (
	// DocumentsKey is the number of documents (examples) in the dataset.
	DocumentsKey = "data.documents"

	// FeaturesKey is the number of features in the dataset.
	FeaturesKey = "data.features"

	// GroupsKey is the number of query groups in the dataset.
	GroupsKey = "data.groups"
)

// Training progress.
const (
	// RoundKey is the boosting round currently running.
	RoundKey = "train.round"

	// TreesKey is the number of trees in the ensemble so far.
	TreesKey = "train.trees"

	// LossKey is the evaluation loss recorded for a round.
	LossKey = "train.loss"

	// MetricKey names the held-out metric used for early stopping.
	MetricKey = "train.metric"

	// DurationMsKey is the wall-clock duration of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"
)
