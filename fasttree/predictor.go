package fasttree

import (
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/parallel"
	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// Predictor is an immutable scoring object: a trained ensemble, the feature
// count it expects and the serialized training arguments, plus an optional
// probability calibrator. It is safe for concurrent use.
type Predictor struct {
	ensemble    *Ensemble
	numFeatures int
	trainArgs   string
	calibrator  Calibrator
}

// NewPredictor wraps an ensemble and its training arguments.
func NewPredictor(e *Ensemble, trainArgs string) *Predictor {
	return &Predictor{
		ensemble:    e,
		numFeatures: e.NumFeatures,
		trainArgs:   trainArgs,
	}
}

// Ensemble returns the wrapped ensemble.
func (p *Predictor) Ensemble() *Ensemble { return p.ensemble }

// NumFeatures returns the number of features the predictor expects.
func (p *Predictor) NumFeatures() int { return p.numFeatures }

// TrainArgs returns the training arguments recorded at save time.
func (p *Predictor) TrainArgs() string { return p.trainArgs }

// Calibrator returns the attached calibrator, nil when none was fitted.
func (p *Predictor) Calibrator() Calibrator { return p.calibrator }

// SetCalibrator attaches a calibrator to the predictor.
func (p *Predictor) SetCalibrator(c Calibrator) { p.calibrator = c }

// Score routes a raw feature vector through the ensemble and returns the
// weighted sum of leaf outputs.
func (p *Predictor) Score(features []float64) (float64, error) {
	if len(features) != p.numFeatures {
		return 0, groveerrors.NewDimensionError("Predictor.Score", p.numFeatures, len(features), 1)
	}
	return p.ensemble.Score(features), nil
}

// ScoreMatrix scores every row of X and returns a column vector of raw
// scores. Rows are scored in parallel.
func (p *Predictor) ScoreMatrix(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != p.numFeatures {
		return nil, groveerrors.NewDimensionError("Predictor.ScoreMatrix", p.numFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	parallel.Parallelize(rows, func(start, end int) {
		features := make([]float64, cols)
		for i := start; i < end; i++ {
			for j := 0; j < cols; j++ {
				features[j] = X.At(i, j)
			}
			out.Set(i, 0, p.ensemble.Score(features))
		}
	})
	return out, nil
}

// PredictProba maps the raw score of a feature vector to a probability,
// through the calibrator when one is attached and the plain sigmoid
// otherwise.
func (p *Predictor) PredictProba(features []float64) (float64, error) {
	score, err := p.Score(features)
	if err != nil {
		return 0, err
	}
	if p.calibrator != nil {
		return p.calibrator.Calibrate(score), nil
	}
	return stableSigmoid(score), nil
}

// Save writes the predictor in the current binary format.
func (p *Predictor) Save(w io.Writer) error {
	return savePredictor(w, p)
}

// stableSigmoid computes 1/(1+exp(-x)) without overflow in exp.
func stableSigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
