package fasttree

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

func TestDatasetBuilderBasic(t *testing.T) {
	b := NewDatasetBuilder(255)
	docs := [][]float64{
		{1.0, 10.0},
		{2.0, 20.0},
		{3.0, 30.0},
		{4.0, 40.0},
	}
	labels := []float64{0, 1, 1, 0}
	for i, row := range docs {
		if err := b.Append(row, labels[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := ds.NumDocs(); got != 4 {
		t.Errorf("NumDocs = %d, want 4", got)
	}
	if got := ds.NumFeatures(); got != 2 {
		t.Errorf("NumFeatures = %d, want 2", got)
	}
	if got := ds.NumGroups(); got != 1 {
		t.Errorf("NumGroups = %d, want 1", got)
	}
	for i, want := range labels {
		if got := ds.Label(i); got != want {
			t.Errorf("Label(%d) = %v, want %v", i, got, want)
		}
	}
	for i := 0; i < 4; i++ {
		if got := ds.Weight(i); got != 1 {
			t.Errorf("Weight(%d) = %v, want 1 (unit weights)", i, got)
		}
	}
}

func TestDatasetBuilderFeatureCountMismatch(t *testing.T) {
	b := NewDatasetBuilder(255)
	if err := b.Append([]float64{1, 2}, 0); err != nil {
		t.Fatalf("first Append: %v", err)
	}

	err := b.Append([]float64{1, 2, 3}, 1)
	if err == nil {
		t.Fatal("expected SchemaError for mismatched feature count")
	}
	var schemaErr *groveerrors.SchemaError
	if !groveerrors.As(err, &schemaErr) {
		t.Fatalf("error type = %T, want *SchemaError", err)
	}
	if schemaErr.Column != "features" {
		t.Errorf("Column = %q, want %q", schemaErr.Column, "features")
	}
}

func TestDatasetBuilderEmpty(t *testing.T) {
	b := NewDatasetBuilder(255)
	_, err := b.Build()
	if err == nil {
		t.Fatal("expected error for empty builder")
	}
	if !groveerrors.Is(err, groveerrors.ErrEmptyData) {
		t.Errorf("error = %v, want ErrEmptyData", err)
	}
}

func TestDatasetBuilderNonFinite(t *testing.T) {
	tests := []struct {
		name     string
		features []float64
		label    float64
		weight   float64
	}{
		{"nan label", []float64{1}, math.NaN(), 1},
		{"inf label", []float64{1}, math.Inf(1), 1},
		{"nan feature", []float64{math.NaN()}, 0, 1},
		{"inf feature", []float64{math.Inf(-1)}, 0, 1},
		{"nan weight", []float64{1}, 0, math.NaN()},
		{"negative weight", []float64{1}, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewDatasetBuilder(255)
			if err := b.AppendWeighted(tt.features, tt.label, tt.weight); err != nil {
				t.Fatalf("AppendWeighted: %v", err)
			}
			_, err := b.Build()
			if err == nil {
				t.Fatal("expected DataError")
			}
			var dataErr *groveerrors.DataError
			if !groveerrors.As(err, &dataErr) {
				t.Fatalf("error type = %T, want *DataError", err)
			}
		})
	}
}

func TestDatasetBinning(t *testing.T) {
	// Two distinct values produce two bins with the midpoint boundary and a
	// final +Inf boundary.
	b := NewDatasetBuilder(255)
	for _, v := range []float64{0, 1, 1, 0} {
		if err := b.Append([]float64{v}, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := ds.NumBins(0); got != 2 {
		t.Fatalf("NumBins = %d, want 2", got)
	}
	wantBins := []uint8{0, 1, 1, 0}
	for doc, want := range wantBins {
		if got := ds.Bin(0, doc); got != want {
			t.Errorf("Bin(0, %d) = %d, want %d", doc, got, want)
		}
	}
	if got := ds.RawThreshold(0, 0); got != 0.5 {
		t.Errorf("RawThreshold(0, 0) = %v, want 0.5", got)
	}
	if got := ds.RawThreshold(0, 1); !math.IsInf(got, 1) {
		t.Errorf("RawThreshold(0, 1) = %v, want +Inf", got)
	}
}

// Routing by bin index and routing by the bin's raw threshold must agree for
// every value that was binned.
func TestDatasetRawThresholdEquivalence(t *testing.T) {
	values := []float64{-3.5, -1, 0, 0.25, 1, 2, 2, 7, 10, 42}
	b := NewDatasetBuilder(4)
	for _, v := range values {
		if err := b.Append([]float64{v}, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	numBins := ds.NumBins(0)
	for doc, v := range values {
		bin := int(ds.Bin(0, doc))
		for threshold := 0; threshold < numBins-1; threshold++ {
			binLeft := bin <= threshold
			rawLeft := v <= ds.RawThreshold(0, threshold)
			if binLeft != rawLeft {
				t.Errorf("doc %d (value %v): bin routing %v != raw routing %v at threshold bin %d",
					doc, v, binLeft, rawLeft, threshold)
			}
		}
	}
}

func TestDatasetMaxBinCap(t *testing.T) {
	b := NewDatasetBuilder(4)
	for i := 0; i < 100; i++ {
		if err := b.Append([]float64{float64(i)}, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ds.NumBins(0); got > 4 {
		t.Errorf("NumBins = %d, want <= 4", got)
	}
}

func TestDatasetGroups(t *testing.T) {
	b := NewDatasetBuilder(255)
	for i := 0; i < 3; i++ {
		if err := b.Append([]float64{float64(i)}, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	b.NextGroup()
	b.NextGroup() // empty group, dropped
	for i := 0; i < 2; i++ {
		if err := b.Append([]float64{float64(i)}, 1); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ds.NumGroups(); got != 2 {
		t.Fatalf("NumGroups = %d, want 2", got)
	}
	want := []int{0, 3, 5}
	got := ds.Boundaries()
	if len(got) != len(want) {
		t.Fatalf("Boundaries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Boundaries = %v, want %v", got, want)
		}
	}
}

func TestDatasetCategorical(t *testing.T) {
	b := NewDatasetBuilder(255, 0)
	for _, v := range []float64{0, 2, 1, 2} {
		if err := b.Append([]float64{v, v * 1.5}, 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !ds.IsCategorical(0) {
		t.Error("IsCategorical(0) = false, want true")
	}
	if ds.IsCategorical(1) {
		t.Error("IsCategorical(1) = true, want false")
	}
	if got := ds.NumBins(0); got != 3 {
		t.Errorf("NumBins(0) = %d, want 3", got)
	}
	wantBins := []uint8{0, 2, 1, 2}
	for doc, want := range wantBins {
		if got := ds.Bin(0, doc); got != want {
			t.Errorf("Bin(0, %d) = %d, want %d", doc, got, want)
		}
	}
}

func TestDatasetCategoricalNonIntegral(t *testing.T) {
	b := NewDatasetBuilder(255, 0)
	if err := b.Append([]float64{1.5}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err := b.Build()
	if err == nil {
		t.Fatal("expected DataError for non-integral categorical value")
	}
	var dataErr *groveerrors.DataError
	if !groveerrors.As(err, &dataErr) {
		t.Fatalf("error type = %T, want *DataError", err)
	}
}

func TestAppendMatrix(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	y := mat.NewDense(3, 1, []float64{0, 1, 0})

	b := NewDatasetBuilder(255)
	if err := b.AppendMatrix(X, y); err != nil {
		t.Fatalf("AppendMatrix: %v", err)
	}
	ds, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ds.NumDocs() != 3 || ds.NumFeatures() != 2 {
		t.Errorf("dims = (%d, %d), want (3, 2)", ds.NumDocs(), ds.NumFeatures())
	}
}

func TestAppendMatrixBadLabelShape(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	b := NewDatasetBuilder(255)
	err := b.AppendMatrix(X, mat.NewDense(2, 2, []float64{0, 1, 1, 0}))
	var schemaErr *groveerrors.SchemaError
	if !groveerrors.As(err, &schemaErr) {
		t.Fatalf("multi-column y: error type = %T, want *SchemaError", err)
	}

	err = b.AppendMatrix(X, mat.NewDense(3, 1, []float64{0, 1, 0}))
	var dimErr *groveerrors.DimensionError
	if !groveerrors.As(err, &dimErr) {
		t.Fatalf("row mismatch: error type = %T, want *DimensionError", err)
	}
}
