package fasttree

import (
	"encoding/binary"
	"math"
	"sync"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// Calibrator maps raw ensemble scores to probabilities. It is the narrow
// interface the trainer composes with; calibration algorithms beyond the
// packaged Platt scaling live outside this package and register themselves
// so serialized predictors can reconstruct them by name.
type Calibrator interface {
	// Calibrate maps a raw score to a probability in [0, 1].
	Calibrate(score float64) float64

	// Name returns the registered name used in the serialized format.
	Name() string

	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// CalibratorTrainer fits a Calibrator from held-out scores and binary 0/1
// labels.
type CalibratorTrainer interface {
	Train(scores, labels []float64) (Calibrator, error)
}

var (
	calibratorMu        sync.RWMutex
	calibratorFactories = map[string]func() Calibrator{}
)

// RegisterCalibrator registers a factory so serialized predictors carrying a
// calibrator of this name can be loaded.
func RegisterCalibrator(name string, factory func() Calibrator) {
	calibratorMu.Lock()
	defer calibratorMu.Unlock()
	calibratorFactories[name] = factory
}

func newCalibratorByName(name string) (Calibrator, error) {
	calibratorMu.RLock()
	factory, ok := calibratorFactories[name]
	calibratorMu.RUnlock()
	if !ok {
		return nil, groveerrors.NewFormatError("LoadPredictor",
			"unknown calibrator '"+name+"'")
	}
	return factory(), nil
}

func init() {
	RegisterCalibrator("platt", func() Calibrator { return &PlattCalibrator{} })
}

// PlattCalibrator is sigmoid calibration: P(y=1|s) = 1 / (1 + exp(A*s + B)).
type PlattCalibrator struct {
	Slope  float64 // A
	Offset float64 // B
}

// NewPlattCalibrator returns a calibrator equivalent to the plain sigmoid of
// the score.
func NewPlattCalibrator() *PlattCalibrator {
	return &PlattCalibrator{Slope: -1, Offset: 0}
}

// Calibrate implements Calibrator.
func (c *PlattCalibrator) Calibrate(score float64) float64 {
	return stableSigmoid(-(c.Slope*score + c.Offset))
}

// Name implements Calibrator.
func (c *PlattCalibrator) Name() string { return "platt" }

// MarshalBinary encodes the two parameters as little-endian float64 bits.
func (c *PlattCalibrator) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(c.Slope))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(c.Offset))
	return buf, nil
}

// UnmarshalBinary decodes parameters written by MarshalBinary.
func (c *PlattCalibrator) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return groveerrors.NewFormatError("PlattCalibrator.UnmarshalBinary",
			"calibrator payload must be 16 bytes")
	}
	c.Slope = math.Float64frombits(binary.LittleEndian.Uint64(data[0:]))
	c.Offset = math.Float64frombits(binary.LittleEndian.Uint64(data[8:]))
	return nil
}

// PlattCalibratorTrainer fits the sigmoid parameters by gradient descent on
// the negative log-likelihood.
type PlattCalibratorTrainer struct {
	Iterations   int     // default 200
	LearningRate float64 // default 0.5
}

// Train implements CalibratorTrainer.
func (t *PlattCalibratorTrainer) Train(scores, labels []float64) (Calibrator, error) {
	if len(scores) == 0 {
		return nil, groveerrors.Wrap(groveerrors.ErrEmptyData, "PlattCalibratorTrainer.Train")
	}
	if len(scores) != len(labels) {
		return nil, groveerrors.NewDimensionError("PlattCalibratorTrainer.Train",
			len(scores), len(labels), 0)
	}

	iterations := t.Iterations
	if iterations <= 0 {
		iterations = 200
	}
	lr := t.LearningRate
	if lr <= 0 {
		lr = 0.5
	}

	c := NewPlattCalibrator()
	n := float64(len(scores))
	for iter := 0; iter < iterations; iter++ {
		gradSlope, gradOffset := 0.0, 0.0
		for i, s := range scores {
			p := c.Calibrate(s)
			diff := p - labels[i]
			gradSlope += -diff * s
			gradOffset += -diff
		}
		c.Slope -= lr * gradSlope / n
		c.Offset -= lr * gradOffset / n
	}
	return c, nil
}
