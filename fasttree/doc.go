// Package fasttree implements a boosted tree-ensemble trainer over a
// pre-binned, column-oriented dataset, in the FastTree/FastForest family.
//
// Training fits one decision tree per round against per-document targets
// produced by a pluggable objective, using leaf-wise (best-first) growth over
// histograms of the binned features. The result is an additive ensemble
// wrapped by a Predictor, with a versioned binary serialization format and
// optional probability calibration.
//
// # Basic usage
//
//	opts := fasttree.DefaultOptions()
//	opts.NumTrees = 50
//	trainer, err := fasttree.NewTrainer(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := trainer.Fit(ctx, X, y); err != nil {
//	    log.Fatal(err)
//	}
//	pred, _ := trainer.Predictor()
//	score, _ := pred.Score(features)
//
// # Persistence
//
//	var buf bytes.Buffer
//	if err := pred.Save(&buf); err != nil { ... }
//	loaded, err := fasttree.LoadPredictor(&buf)
//
// The serialized format carries a VersionInfo header; loading a stream whose
// stored version falls outside the compatibility window fails with a
// FormatError naming the version found and the supported range.
package fasttree
