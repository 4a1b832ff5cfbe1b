package fasttree

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// Dataset is the binned, column-oriented training set. Features are stored as
// per-feature arrays of small-integer bin indices computed once from a fixed
// discretization, trading a quantization error for memory and cache locality.
// A Dataset is immutable once built and safe to share across worker
// goroutines.
type Dataset struct {
	numDocs     int
	numFeatures int

	// bins[f][doc] is the bin index of document doc for feature f.
	bins [][]uint8

	// binUpperBounds[f][b] is the largest raw value mapped to bin b of
	// feature f; the final bound is +Inf. Nil for categorical features,
	// whose bins are the raw integral values.
	binUpperBounds [][]float64

	labels  []float64
	weights []float64 // nil means unit weights

	// boundaries holds query-group offsets: boundaries[0] == 0,
	// boundaries[len-1] == numDocs, non-decreasing.
	boundaries []int

	categorical map[int]bool
}

// NumDocs returns the number of documents.
func (d *Dataset) NumDocs() int { return d.numDocs }

// NumFeatures returns the number of features.
func (d *Dataset) NumFeatures() int { return d.numFeatures }

// NumGroups returns the number of query groups.
func (d *Dataset) NumGroups() int { return len(d.boundaries) - 1 }

// Boundaries returns the query-group offsets. The slice is owned by the
// Dataset and must not be modified.
func (d *Dataset) Boundaries() []int { return d.boundaries }

// Label returns the label of document i.
func (d *Dataset) Label(i int) float64 { return d.labels[i] }

// Labels returns the label column. The slice is owned by the Dataset.
func (d *Dataset) Labels() []float64 { return d.labels }

// Weight returns the instance weight of document i, 1 when no weight column
// was supplied.
func (d *Dataset) Weight(i int) float64 {
	if d.weights == nil {
		return 1
	}
	return d.weights[i]
}

// Bin returns the bin index of document doc for feature f.
func (d *Dataset) Bin(f, doc int) uint8 { return d.bins[f][doc] }

// FeatureBins returns the dense per-feature bin array for feature f, used
// for single-pass histogram construction. The slice is owned by the Dataset.
func (d *Dataset) FeatureBins(f int) []uint8 { return d.bins[f] }

// NumBins returns the number of distinct bins of feature f.
func (d *Dataset) NumBins(f int) int {
	if d.binUpperBounds[f] != nil {
		return len(d.binUpperBounds[f])
	}
	// Categorical: bins are raw values; count is max+1.
	maxBin := uint8(0)
	for _, b := range d.bins[f] {
		if b > maxBin {
			maxBin = b
		}
	}
	return int(maxBin) + 1
}

// IsCategorical reports whether feature f uses categorical splits.
func (d *Dataset) IsCategorical(f int) bool { return d.categorical[f] }

// RawThreshold returns the raw-value threshold equivalent to routing
// bins <= bin left for numerical feature f.
func (d *Dataset) RawThreshold(f, bin int) float64 {
	uppers := d.binUpperBounds[f]
	if uppers == nil || bin >= len(uppers) {
		return math.Inf(1)
	}
	return uppers[bin]
}

// DatasetBuilder accumulates raw documents and produces an immutable binned
// Dataset. The feature count is fixed by the first appended document;
// subsequent mismatches are rejected.
type DatasetBuilder struct {
	maxBin      int
	categorical map[int]bool

	numFeatures int
	columns     [][]float64 // feature-major raw values
	labels      []float64
	weights     []float64
	hasWeights  bool

	boundaries []int
}

// NewDatasetBuilder creates a builder. maxBin bounds the number of bins per
// feature (at most 255); categorical lists feature indices to bin by raw
// integral value.
func NewDatasetBuilder(maxBin int, categorical ...int) *DatasetBuilder {
	if maxBin <= 0 || maxBin > 255 {
		maxBin = 255
	}
	cats := make(map[int]bool, len(categorical))
	for _, f := range categorical {
		cats[f] = true
	}
	return &DatasetBuilder{
		maxBin:      maxBin,
		categorical: cats,
		boundaries:  []int{0},
	}
}

// Append adds a document with unit weight to the current query group.
func (b *DatasetBuilder) Append(features []float64, label float64) error {
	return b.AppendWeighted(features, label, 1)
}

// AppendWeighted adds a weighted document to the current query group.
func (b *DatasetBuilder) AppendWeighted(features []float64, label, weight float64) error {
	if b.numFeatures == 0 && len(b.labels) == 0 {
		if len(features) == 0 {
			return groveerrors.NewSchemaError("features", "fixed-size float vector", "empty vector")
		}
		b.numFeatures = len(features)
		b.columns = make([][]float64, b.numFeatures)
	} else if len(features) != b.numFeatures {
		return groveerrors.NewSchemaError("features",
			fmt.Sprintf("fixed-size float vector of length %d", b.numFeatures),
			fmt.Sprintf("vector of length %d", len(features)))
	}

	for f, v := range features {
		b.columns[f] = append(b.columns[f], v)
	}
	b.labels = append(b.labels, label)
	b.weights = append(b.weights, weight)
	if weight != 1 {
		b.hasWeights = true
	}
	return nil
}

// NextGroup closes the current query group. Empty groups are dropped.
func (b *DatasetBuilder) NextGroup() {
	n := len(b.labels)
	if n > b.boundaries[len(b.boundaries)-1] {
		b.boundaries = append(b.boundaries, n)
	}
}

// AppendMatrix bulk-appends rows of X with labels from the single column of
// y. It enforces the training-input contract: y must be a single float
// column whose row count matches X.
func (b *DatasetBuilder) AppendMatrix(X, y mat.Matrix) error {
	xr, xc := X.Dims()
	yr, yc := y.Dims()
	if yc != 1 {
		return groveerrors.NewSchemaError("label", "single float column",
			fmt.Sprintf("%d columns", yc))
	}
	if xr != yr {
		return groveerrors.NewDimensionError("Dataset.AppendMatrix", xr, yr, 0)
	}

	row := make([]float64, xc)
	for i := 0; i < xr; i++ {
		for j := 0; j < xc; j++ {
			row[j] = X.At(i, j)
		}
		if err := b.Append(row, y.At(i, 0)); err != nil {
			return err
		}
	}
	return nil
}

// Build computes per-feature bin boundaries over everything appended so far
// and returns the immutable Dataset. Non-finite labels, weights or feature
// values are a DataError; so is an empty builder.
func (b *DatasetBuilder) Build() (*Dataset, error) {
	numDocs := len(b.labels)
	if numDocs == 0 {
		return nil, groveerrors.Wrap(groveerrors.ErrEmptyData, "Dataset.Build")
	}

	for i, l := range b.labels {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return nil, groveerrors.NewDataError("Dataset.Build", "non-finite label", i)
		}
	}
	for i, w := range b.weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, groveerrors.NewDataError("Dataset.Build", "non-finite or negative weight", i)
		}
	}

	ds := &Dataset{
		numDocs:        numDocs,
		numFeatures:    b.numFeatures,
		bins:           make([][]uint8, b.numFeatures),
		binUpperBounds: make([][]float64, b.numFeatures),
		labels:         b.labels,
		categorical:    b.categorical,
	}
	if b.hasWeights {
		ds.weights = b.weights
	}

	// Close the trailing query group.
	boundaries := b.boundaries
	if boundaries[len(boundaries)-1] != numDocs {
		boundaries = append(boundaries, numDocs)
	}
	ds.boundaries = boundaries

	for f := 0; f < b.numFeatures; f++ {
		col := b.columns[f]
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, groveerrors.NewDataError("Dataset.Build",
					fmt.Sprintf("non-finite value in feature %d", f), i)
			}
		}

		if b.categorical[f] {
			binned, err := binCategorical(f, col, b.maxBin)
			if err != nil {
				return nil, err
			}
			ds.bins[f] = binned
			continue
		}

		uppers := findBinUpperBounds(col, b.maxBin)
		ds.binUpperBounds[f] = uppers
		binned := make([]uint8, numDocs)
		for i, v := range col {
			binned[i] = uint8(sort.Search(len(uppers), func(x int) bool {
				return v <= uppers[x]
			}))
		}
		ds.bins[f] = binned
	}

	return ds, nil
}

// findBinUpperBounds computes equal-frequency bin upper bounds for one
// feature column. Each bound is the midpoint between adjacent distinct
// values; the last bound is +Inf.
func findBinUpperBounds(values []float64, maxBin int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	unique := sorted[:1]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			unique = append(unique, sorted[i])
		}
	}

	if len(unique) <= maxBin {
		uppers := make([]float64, len(unique))
		for i := 0; i < len(unique)-1; i++ {
			uppers[i] = (unique[i] + unique[i+1]) / 2
		}
		uppers[len(unique)-1] = math.Inf(1)
		return uppers
	}

	binSize := len(unique) / maxBin
	uppers := make([]float64, 0, maxBin)
	for i := binSize; i < len(unique) && len(uppers) < maxBin-1; i += binSize {
		uppers = append(uppers, (unique[i-1]+unique[i])/2)
	}
	uppers = append(uppers, math.Inf(1))
	return uppers
}

func binCategorical(f int, values []float64, maxBin int) ([]uint8, error) {
	binned := make([]uint8, len(values))
	for i, v := range values {
		iv := math.Trunc(v)
		if iv != v || iv < 0 || int(iv) >= maxBin {
			return nil, groveerrors.NewDataError("Dataset.Build",
				fmt.Sprintf("categorical feature %d requires integral values in [0, %d)", f, maxBin), i)
		}
		binned[i] = uint8(iv)
	}
	return binned, nil
}
