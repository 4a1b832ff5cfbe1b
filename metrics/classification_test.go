package metrics

import (
	"math"
	"testing"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name   string
		yTrue  []float64
		yScore []float64
		want   float64
	}{
		{
			name:   "perfect",
			yTrue:  []float64{0, 1, 1, 0},
			yScore: []float64{0.1, 0.9, 0.8, 0.2},
			want:   1.0,
		},
		{
			name:   "all wrong",
			yTrue:  []float64{0, 1},
			yScore: []float64{0.9, 0.1},
			want:   0.0,
		},
		{
			name:   "half right",
			yTrue:  []float64{0, 1, 1, 0},
			yScore: []float64{0.9, 0.9, 0.1, 0.1},
			want:   0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.yTrue, tt.yScore)
			if err != nil {
				t.Fatalf("Accuracy: %v", err)
			}
			if got != tt.want {
				t.Errorf("Accuracy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUC(t *testing.T) {
	perfect, err := AUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9})
	if err != nil {
		t.Fatalf("AUC: %v", err)
	}
	if perfect != 1.0 {
		t.Errorf("perfect ranking AUC = %v, want 1", perfect)
	}

	inverted, err := AUC([]float64{0, 0, 1, 1}, []float64{0.9, 0.8, 0.2, 0.1})
	if err != nil {
		t.Fatalf("AUC: %v", err)
	}
	if inverted != 0.0 {
		t.Errorf("inverted ranking AUC = %v, want 0", inverted)
	}

	// All scores tied: every pair contributes half.
	tied, err := AUC([]float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("AUC: %v", err)
	}
	if tied != 0.5 {
		t.Errorf("tied scores AUC = %v, want 0.5", tied)
	}
}

func TestAUCSingleClass(t *testing.T) {
	warned := false
	groveerrors.SetWarningHandler(func(w error) { warned = true })
	defer groveerrors.SetWarningHandler(nil)

	got, err := AUC([]float64{1, 1, 1}, []float64{0.1, 0.5, 0.9})
	if err != nil {
		t.Fatalf("AUC: %v", err)
	}
	if got != 0.5 {
		t.Errorf("single-class AUC = %v, want 0.5", got)
	}
	if !warned {
		t.Error("single-class AUC should emit a warning")
	}
}

func TestLogLoss(t *testing.T) {
	// Uniform 0.5 predictions give exactly ln 2.
	got, err := LogLoss([]float64{0, 1, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("LogLoss: %v", err)
	}
	if math.Abs(got-math.Ln2) > 1e-12 {
		t.Errorf("LogLoss = %v, want ln 2", got)
	}

	// Extreme probabilities are clipped away from 0 and 1.
	got, err = LogLoss([]float64{1, 0}, []float64{0, 1})
	if err != nil {
		t.Fatalf("LogLoss: %v", err)
	}
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("LogLoss with extreme probabilities = %v, want finite", got)
	}

	confident, err := LogLoss([]float64{1, 0}, []float64{0.99, 0.01})
	if err != nil {
		t.Fatalf("LogLoss: %v", err)
	}
	sloppy, err := LogLoss([]float64{1, 0}, []float64{0.6, 0.4})
	if err != nil {
		t.Fatalf("LogLoss: %v", err)
	}
	if confident >= sloppy {
		t.Errorf("confident loss %v should be below sloppy loss %v", confident, sloppy)
	}
}

func TestMetricInputErrors(t *testing.T) {
	type metricFunc func(yTrue, yPred []float64) (float64, error)

	for name, fn := range map[string]metricFunc{
		"Accuracy": Accuracy,
		"AUC":      AUC,
		"LogLoss":  LogLoss,
	} {
		if _, err := fn(nil, nil); !groveerrors.Is(err, groveerrors.ErrEmptyData) {
			t.Errorf("%s(nil, nil) = %v, want ErrEmptyData", name, err)
		}

		_, err := fn([]float64{1, 0}, []float64{0.5})
		var dimErr *groveerrors.DimensionError
		if !groveerrors.As(err, &dimErr) {
			t.Errorf("%s length mismatch: error type = %T, want *DimensionError", name, err)
		}
	}
}
