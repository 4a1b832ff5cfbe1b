package fasttree

// Ensemble is an append-only ordered collection of trees with per-tree
// output weights. AddTree is the only mutator and is called single-threadedly
// during training; scoring reads are pure and safe to run concurrently for
// different examples once training has finished.
type Ensemble struct {
	Trees       []Tree
	Weights     []float64
	NumFeatures int
}

// NewEnsemble creates an empty ensemble over numFeatures features.
func NewEnsemble(numFeatures int) *Ensemble {
	return &Ensemble{NumFeatures: numFeatures}
}

// AddTree appends a tree with its output weight.
func (e *Ensemble) AddTree(t Tree, weight float64) {
	e.Trees = append(e.Trees, t)
	e.Weights = append(e.Weights, weight)
}

// NumTrees returns the number of trees in the ensemble.
func (e *Ensemble) NumTrees() int { return len(e.Trees) }

// Score routes the raw feature vector through every tree and returns the
// weighted sum of leaf outputs.
func (e *Ensemble) Score(features []float64) float64 {
	score := 0.0
	for i := range e.Trees {
		score += e.Weights[i] * e.Trees[i].Predict(features)
	}
	return score
}

// FeatureImportance returns per-feature importance scores, normalized to sum
// to 1. kind is "split" (number of splits using the feature) or "gain"
// (total split gain attributed to the feature).
func (e *Ensemble) FeatureImportance(kind string) []float64 {
	importance := make([]float64, e.NumFeatures)

	for ti := range e.Trees {
		for ni := range e.Trees[ti].Nodes {
			node := &e.Trees[ti].Nodes[ni]
			if node.IsLeaf() {
				continue
			}
			switch kind {
			case "gain":
				importance[node.SplitFeature] += node.Gain
			default:
				importance[node.SplitFeature]++
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance
}
