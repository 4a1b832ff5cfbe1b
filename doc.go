// Package grove provides gradient-boosted tree ensembles for Go backend
// services: training over binned datasets, raw-feature scoring and a
// versioned binary model format.
//
// # Quick Start
//
// Train a boosted binary classifier from gonum matrices:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/grove-ml/grove/fasttree"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
//	    y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
//
//	    trainer, err := fasttree.NewTrainer(fasttree.Options{
//	        NumTrees:      50,
//	        MinDocsInLeaf: 1,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := trainer.Fit(context.Background(), X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    p, err := trainer.Predictor()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    prob, _ := p.PredictProba([]float64{2.5})
//	    fmt.Println("P(positive):", prob)
//	}
//
// # Packages
//
//   - fasttree: boosted-tree and random-forest training, scoring,
//     calibration and model serialization
//   - metrics: evaluation metrics (accuracy, AUC, log loss)
//   - core: shared estimator interfaces
//   - core/parallel: parallel processing utilities
//   - pkg/errors: structured errors and warnings
//   - pkg/log: structured logging interface
package grove
