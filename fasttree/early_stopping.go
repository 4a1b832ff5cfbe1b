package fasttree

import (
	"math"
)

// EarlyStopping tracks a held-out metric across rounds and signals when the
// configured number of rounds has passed without improvement.
type EarlyStopping struct {
	Rounds          int
	BestScore       float64
	BestIteration   int
	RoundsNoImprove int
	Metric          string
	Minimize        bool
	Enabled         bool
}

// NewEarlyStopping creates an early-stopping handler. A non-positive rounds
// disables it.
func NewEarlyStopping(rounds int, metric string) *EarlyStopping {
	if rounds <= 0 {
		return &EarlyStopping{Enabled: false}
	}

	minimize := true
	switch metric {
	case "auc", "accuracy":
		minimize = false
	}

	bestScore := math.Inf(1)
	if !minimize {
		bestScore = math.Inf(-1)
	}

	return &EarlyStopping{
		Rounds:    rounds,
		BestScore: bestScore,
		Metric:    metric,
		Minimize:  minimize,
		Enabled:   true,
	}
}

// Update records the metric for a round and reports whether training should
// stop.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	if !es.Enabled {
		return false
	}

	improved := false
	if es.Minimize {
		improved = score < es.BestScore
	} else {
		improved = score > es.BestScore
	}

	if improved {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
		return false
	}

	es.RoundsNoImprove++
	return es.RoundsNoImprove >= es.Rounds
}
