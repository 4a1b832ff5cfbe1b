// Package metrics provides evaluation metrics for grove models. The trainer
// uses these for held-out evaluation and early stopping.
package metrics

import (
	"math"
	"sort"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// Accuracy returns the fraction of predictions whose thresholded class
// matches the true label. Scores are thresholded at 0.5, labels at 0.5.
func Accuracy(yTrue, yScore []float64) (float64, error) {
	if err := checkLengths("Accuracy", yTrue, yScore); err != nil {
		return 0, err
	}

	correct := 0
	for i := range yTrue {
		pred := 0.0
		if yScore[i] >= 0.5 {
			pred = 1.0
		}
		truth := 0.0
		if yTrue[i] >= 0.5 {
			truth = 1.0
		}
		if pred == truth {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// AUC returns the area under the ROC curve via the rank statistic. Ties in
// score contribute half. Returns 0.5 when only one class is present, with a
// warning, matching the scikit-learn undefined-metric convention.
func AUC(yTrue, yScore []float64) (float64, error) {
	if err := checkLengths("AUC", yTrue, yScore); err != nil {
		return 0, err
	}

	type pair struct {
		score float64
		label float64
	}
	pairs := make([]pair, len(yTrue))
	numPos := 0.0
	for i := range yTrue {
		pairs[i] = pair{score: yScore[i], label: yTrue[i]}
		if yTrue[i] >= 0.5 {
			numPos++
		}
	}
	numNeg := float64(len(yTrue)) - numPos

	if numPos == 0 || numNeg == 0 {
		groveerrors.Warn(groveerrors.Newf("AUC is ill-defined with a single class and is set to 0.5"))
		return 0.5, nil
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	// Average ranks over tied scores.
	ranks := make([]float64, len(pairs))
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		avgRank := float64(i+j+1) / 2.0 // 1-based
		for k := i; k < j; k++ {
			ranks[k] = avgRank
		}
		i = j
	}

	sumPosRanks := 0.0
	for k, p := range pairs {
		if p.label >= 0.5 {
			sumPosRanks += ranks[k]
		}
	}

	return (sumPosRanks - numPos*(numPos+1)/2.0) / (numPos * numNeg), nil
}

// LogLoss returns the mean negative log-likelihood of probability
// predictions against binary labels. Probabilities are clipped away from 0
// and 1 to keep the logarithm finite.
func LogLoss(yTrue, yProb []float64) (float64, error) {
	if err := checkLengths("LogLoss", yTrue, yProb); err != nil {
		return 0, err
	}

	const eps = 1e-15
	sum := 0.0
	for i := range yTrue {
		p := yProb[i]
		if p < eps {
			p = eps
		}
		if p > 1-eps {
			p = 1 - eps
		}
		if yTrue[i] >= 0.5 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(yTrue)), nil
}

func checkLengths(op string, yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return groveerrors.Wrap(groveerrors.ErrEmptyData, op)
	}
	if len(yTrue) != len(yPred) {
		return groveerrors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}
