package fasttree

import (
	"math"
	"testing"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

func TestPlattCalibratorDefaults(t *testing.T) {
	c := NewPlattCalibrator()

	if got := c.Calibrate(0); got != 0.5 {
		t.Errorf("Calibrate(0) = %v, want 0.5", got)
	}
	// Slope -1 reduces to the plain sigmoid.
	if got, want := c.Calibrate(2), stableSigmoid(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("Calibrate(2) = %v, want %v", got, want)
	}
}

func TestPlattCalibratorMarshalRoundTrip(t *testing.T) {
	c := &PlattCalibrator{Slope: -1.75, Offset: 0.25}

	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("payload length = %d, want 16", len(data))
	}

	var back PlattCalibrator
	if err := back.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if back.Slope != c.Slope || back.Offset != c.Offset {
		t.Errorf("round trip = {%v, %v}, want {%v, %v}", back.Slope, back.Offset, c.Slope, c.Offset)
	}

	if err := back.UnmarshalBinary(data[:8]); err == nil {
		t.Error("expected error for short payload")
	}
}

func TestPlattTrainerSeparatesClasses(t *testing.T) {
	// Positive labels carry positive scores with a clean margin.
	scores := []float64{-3, -2.5, -2, -1.5, 1.5, 2, 2.5, 3}
	labels := []float64{0, 0, 0, 0, 1, 1, 1, 1}

	c, err := (&PlattCalibratorTrainer{}).Train(scores, labels)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	for i, s := range scores {
		p := c.Calibrate(s)
		if p < 0 || p > 1 {
			t.Errorf("Calibrate(%v) = %v, outside [0, 1]", s, p)
		}
		if labels[i] == 1 && p <= 0.5 {
			t.Errorf("Calibrate(%v) = %v, want > 0.5 for positive", s, p)
		}
		if labels[i] == 0 && p >= 0.5 {
			t.Errorf("Calibrate(%v) = %v, want < 0.5 for negative", s, p)
		}
	}

	// Monotone in the score.
	prev := c.Calibrate(scores[0])
	for _, s := range scores[1:] {
		p := c.Calibrate(s)
		if p < prev {
			t.Errorf("Calibrate not monotone at score %v", s)
		}
		prev = p
	}
}

func TestPlattTrainerErrors(t *testing.T) {
	trainer := &PlattCalibratorTrainer{}

	if _, err := trainer.Train(nil, nil); !groveerrors.Is(err, groveerrors.ErrEmptyData) {
		t.Errorf("empty input: error = %v, want ErrEmptyData", err)
	}

	_, err := trainer.Train([]float64{1, 2}, []float64{1})
	var dimErr *groveerrors.DimensionError
	if !groveerrors.As(err, &dimErr) {
		t.Errorf("length mismatch: error type = %T, want *DimensionError", err)
	}
}

func TestCalibratorRegistry(t *testing.T) {
	c, err := newCalibratorByName("platt")
	if err != nil {
		t.Fatalf("newCalibratorByName: %v", err)
	}
	if _, ok := c.(*PlattCalibrator); !ok {
		t.Errorf("factory type = %T, want *PlattCalibrator", c)
	}

	_, err = newCalibratorByName("isotonic")
	if err == nil {
		t.Fatal("expected error for unregistered calibrator")
	}
	var formatErr *groveerrors.FormatError
	if !groveerrors.As(err, &formatErr) {
		t.Errorf("error type = %T, want *FormatError", err)
	}
}
