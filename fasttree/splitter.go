package fasttree

import (
	"math/rand"
	"sort"

	"github.com/grove-ml/grove/core/parallel"
	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// parallelFeatureThreshold is the minimum number of sampled features before
// split search fans out across goroutines.
const parallelFeatureThreshold = 8

// splitCandidate describes one evaluated (leaf, feature, bin) split.
type splitCandidate struct {
	valid   bool
	gain    float64
	feature int
	// bin is the highest bin routed left for numerical splits, and the
	// prefix length of the mean-ordered bin sequence for categorical
	// splits; it doubles as the deterministic tie-break key.
	bin        int
	categories []uint32

	leftCount, rightCount   int
	leftSum, rightSum       float64
	leftWeight, rightWeight float64
}

// frontierLeaf is a growable leaf in the best-first frontier.
type frontierLeaf struct {
	node       int32
	docs       []int
	sumTargets float64
	sumWeights float64

	cand         splitCandidate
	candComputed bool

	// excluded marks (feature, bin) candidates that failed to materialize
	// this round; the retry falls back to the next-best candidate.
	excluded map[int]map[int]bool
}

func (l *frontierLeaf) exclude(feature, bin int) {
	if l.excluded == nil {
		l.excluded = make(map[int]map[int]bool)
	}
	if l.excluded[feature] == nil {
		l.excluded[feature] = make(map[int]bool)
	}
	l.excluded[feature][bin] = true
	l.candComputed = false
}

func (l *frontierLeaf) isExcluded(feature, bin int) bool {
	return l.excluded != nil && l.excluded[feature][bin]
}

// treeBuilder grows one tree per round by leaf-wise (best-first) expansion:
// it keeps a frontier of candidate leaves, finds each leaf's best split over
// histograms of the sampled features, and repeatedly materializes the global
// best until the leaf budget is exhausted or no split clears the gain floor.
type treeBuilder struct {
	ds       *Dataset
	opts     Options
	targets  []float64
	features []int // sampled feature indices, ascending
	rng      *rand.Rand
}

func newTreeBuilder(ds *Dataset, opts Options, targets []float64, features []int, rng *rand.Rand) *treeBuilder {
	return &treeBuilder{
		ds:       ds,
		opts:     opts,
		targets:  targets,
		features: features,
		rng:      rng,
	}
}

// Build grows a tree over the sampled documents and returns it together with
// the training documents assigned to each leaf node index.
func (b *treeBuilder) Build(docs []int) (Tree, map[int32][]int, error) {
	if len(docs) == 0 {
		return Tree{}, nil, groveerrors.NewDataError("treeBuilder.Build", "no documents sampled", -1)
	}

	sumT, sumW := b.sums(docs)
	tree := Tree{
		Nodes: []Node{{
			Kind:      LeafNode,
			LeftChild: -1, RightChild: -1,
			LeafValue: b.leafOutput(sumT, sumW),
			Count:     int32(len(docs)),
		}},
	}
	frontier := []*frontierLeaf{{
		node:       0,
		docs:       docs,
		sumTargets: sumT,
		sumWeights: sumW,
	}}

	for len(frontier) < b.opts.NumLeaves {
		for _, leaf := range frontier {
			if !leaf.candComputed {
				leaf.cand = b.bestSplit(leaf)
				leaf.candComputed = true
			}
		}

		bestLeaf := -1
		for i, leaf := range frontier {
			if !leaf.cand.valid {
				continue
			}
			if bestLeaf < 0 || betterCandidate(leaf.cand, frontier[bestLeaf].cand) {
				bestLeaf = i
			}
		}
		if bestLeaf < 0 || frontier[bestLeaf].cand.gain <= b.opts.MinGainToSplit {
			break
		}

		leaf := frontier[bestLeaf]
		cand := leaf.cand
		leftDocs, rightDocs := b.partition(leaf.docs, cand)
		if len(leftDocs) == 0 || len(rightDocs) == 0 {
			// The histogram promised a split the partition could not
			// deliver (degenerate bin layout); drop this candidate and
			// retry the leaf with the next best.
			leaf.exclude(cand.feature, cand.bin)
			continue
		}

		left, right := b.materialize(&tree, leaf, cand, leftDocs, rightDocs)
		frontier[bestLeaf] = left
		frontier = append(frontier, right)
	}

	tree.NumLeaves = len(frontier)
	leafDocs := make(map[int32][]int, len(frontier))
	for _, leaf := range frontier {
		leafDocs[leaf.node] = leaf.docs
	}
	b.attachQuantileSamples(&tree, leafDocs)

	return tree, leafDocs, nil
}

// bestSplit evaluates every sampled feature for a leaf, in parallel across
// features, and reduces single-threadedly so the tie-break is independent of
// goroutine scheduling.
func (b *treeBuilder) bestSplit(leaf *frontierLeaf) splitCandidate {
	results := make([]splitCandidate, len(b.features))

	parallel.ParallelizeWithThreshold(len(b.features), parallelFeatureThreshold, func(start, end int) {
		for fi := start; fi < end; fi++ {
			f := b.features[fi]
			if b.ds.IsCategorical(f) {
				results[fi] = b.bestCategoricalSplit(leaf, f)
			} else {
				results[fi] = b.bestNumericalSplit(leaf, f)
			}
		}
	})

	best := splitCandidate{}
	for _, cand := range results {
		if cand.valid && (!best.valid || betterCandidate(cand, best)) {
			best = cand
		}
	}
	return best
}

// betterCandidate orders candidates by gain, breaking ties toward the lower
// feature index, then the lower bin threshold, for determinism.
func betterCandidate(a, b splitCandidate) bool {
	if a.gain != b.gain {
		return a.gain > b.gain
	}
	if a.feature != b.feature {
		return a.feature < b.feature
	}
	return a.bin < b.bin
}

// histogram accumulates, for one (leaf, feature) pair, the weighted target
// sum, the weight sum and the document count per bin in a single pass over
// the leaf's documents.
func (b *treeBuilder) histogram(leaf *frontierLeaf, f int) (sumT, sumW []float64, cnt []int) {
	numBins := b.ds.NumBins(f)
	sumT = make([]float64, numBins)
	sumW = make([]float64, numBins)
	cnt = make([]int, numBins)

	bins := b.ds.FeatureBins(f)
	for _, doc := range leaf.docs {
		bin := bins[doc]
		w := b.ds.Weight(doc)
		sumT[bin] += b.targets[doc] * w
		sumW[bin] += w
		cnt[bin]++
	}
	return sumT, sumW, cnt
}

// varianceScore is the per-partition term of the variance-reduction gain:
// (sum of weighted targets)^2 / (sum of weights).
func varianceScore(sum, weight float64) float64 {
	if weight <= 0 {
		return 0
	}
	return sum * sum / weight
}

func (b *treeBuilder) bestNumericalSplit(leaf *frontierLeaf, f int) splitCandidate {
	numBins := b.ds.NumBins(f)
	if numBins < 2 {
		return splitCandidate{}
	}

	sumT, sumW, cnt := b.histogram(leaf, f)
	parentScore := varianceScore(leaf.sumTargets, leaf.sumWeights)

	best := splitCandidate{feature: f}
	leftSum, leftWeight := 0.0, 0.0
	leftCount := 0

	for bin := 0; bin < numBins-1; bin++ {
		leftSum += sumT[bin]
		leftWeight += sumW[bin]
		leftCount += cnt[bin]

		rightCount := len(leaf.docs) - leftCount
		if leftCount < b.opts.MinDocsInLeaf || rightCount < b.opts.MinDocsInLeaf {
			continue
		}
		if b.isExcluded(leaf, f, bin) {
			continue
		}

		rightSum := leaf.sumTargets - leftSum
		rightWeight := leaf.sumWeights - leftWeight
		gain := varianceScore(leftSum, leftWeight) + varianceScore(rightSum, rightWeight) - parentScore

		// Strict improvement keeps the lowest qualifying bin on ties.
		if !best.valid || gain > best.gain {
			best.valid = true
			best.gain = gain
			best.bin = bin
			best.leftCount = leftCount
			best.rightCount = rightCount
			best.leftSum = leftSum
			best.rightSum = rightSum
			best.leftWeight = leftWeight
			best.rightWeight = rightWeight
		}
	}
	return best
}

// bestCategoricalSplit orders the populated bins by mean target and scans
// prefix subsets of that ordering, the standard reduction of subset
// enumeration to a single sorted sweep. The candidate's left set is the
// chosen prefix.
func (b *treeBuilder) bestCategoricalSplit(leaf *frontierLeaf, f int) splitCandidate {
	sumT, sumW, cnt := b.histogram(leaf, f)

	order := make([]int, 0, len(cnt))
	for bin, c := range cnt {
		if c > 0 {
			order = append(order, bin)
		}
	}
	if len(order) < 2 {
		return splitCandidate{}
	}
	sort.Slice(order, func(i, j int) bool {
		mi := groveerrors.SafeDivide(sumT[order[i]], sumW[order[i]])
		mj := groveerrors.SafeDivide(sumT[order[j]], sumW[order[j]])
		if mi != mj {
			return mi < mj
		}
		return order[i] < order[j]
	})

	parentScore := varianceScore(leaf.sumTargets, leaf.sumWeights)

	best := splitCandidate{feature: f}
	leftSum, leftWeight := 0.0, 0.0
	leftCount := 0

	for k := 1; k < len(order); k++ {
		bin := order[k-1]
		leftSum += sumT[bin]
		leftWeight += sumW[bin]
		leftCount += cnt[bin]

		rightCount := len(leaf.docs) - leftCount
		if leftCount < b.opts.MinDocsInLeaf || rightCount < b.opts.MinDocsInLeaf {
			continue
		}
		if b.isExcluded(leaf, f, k) {
			continue
		}

		rightSum := leaf.sumTargets - leftSum
		rightWeight := leaf.sumWeights - leftWeight
		gain := varianceScore(leftSum, leftWeight) + varianceScore(rightSum, rightWeight) - parentScore

		if !best.valid || gain > best.gain {
			categories := make([]uint32, k)
			for i := 0; i < k; i++ {
				categories[i] = uint32(order[i])
			}
			sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

			best.valid = true
			best.gain = gain
			best.bin = k
			best.categories = categories
			best.leftCount = leftCount
			best.rightCount = rightCount
			best.leftSum = leftSum
			best.rightSum = rightSum
			best.leftWeight = leftWeight
			best.rightWeight = rightWeight
		}
	}
	return best
}

func (b *treeBuilder) isExcluded(leaf *frontierLeaf, feature, bin int) bool {
	return leaf.isExcluded(feature, bin)
}

// partition splits a leaf's documents by the candidate's routing test.
func (b *treeBuilder) partition(docs []int, cand splitCandidate) (left, right []int) {
	bins := b.ds.FeatureBins(cand.feature)
	left = make([]int, 0, cand.leftCount)
	right = make([]int, 0, cand.rightCount)

	if cand.categories != nil {
		for _, doc := range docs {
			if containsBin(cand.categories, uint32(bins[doc])) {
				left = append(left, doc)
			} else {
				right = append(right, doc)
			}
		}
		return left, right
	}

	for _, doc := range docs {
		if int(bins[doc]) <= cand.bin {
			left = append(left, doc)
		} else {
			right = append(right, doc)
		}
	}
	return left, right
}

// materialize turns a frontier leaf into an internal node and appends its
// two children to the arena.
func (b *treeBuilder) materialize(tree *Tree, leaf *frontierLeaf, cand splitCandidate, leftDocs, rightDocs []int) (left, right *frontierLeaf) {
	leftIdx := int32(len(tree.Nodes))
	rightIdx := leftIdx + 1

	node := &tree.Nodes[leaf.node]
	node.SplitFeature = int32(cand.feature)
	node.Gain = cand.gain
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.LeafValue = 0
	if cand.categories != nil {
		node.Kind = CategoricalNode
		node.Categories = cand.categories
	} else {
		node.Kind = NumericalNode
		node.BinThreshold = uint32(cand.bin)
		node.Threshold = b.ds.RawThreshold(cand.feature, cand.bin)
	}

	tree.Nodes = append(tree.Nodes,
		Node{
			Kind:      LeafNode,
			LeftChild: -1, RightChild: -1,
			LeafValue: b.leafOutput(cand.leftSum, cand.leftWeight),
			Count:     int32(len(leftDocs)),
		},
		Node{
			Kind:      LeafNode,
			LeftChild: -1, RightChild: -1,
			LeafValue: b.leafOutput(cand.rightSum, cand.rightWeight),
			Count:     int32(len(rightDocs)),
		})

	left = &frontierLeaf{
		node:       leftIdx,
		docs:       leftDocs,
		sumTargets: cand.leftSum,
		sumWeights: cand.leftWeight,
	}
	right = &frontierLeaf{
		node:       rightIdx,
		docs:       rightDocs,
		sumTargets: cand.rightSum,
		sumWeights: cand.rightWeight,
	}
	return left, right
}

// leafOutput is the weighted mean target, clamped to +-MaxTreeOutput. The
// clamp is the NumericGuard for near-pure leaves: recovered locally, never
// surfaced as an error.
func (b *treeBuilder) leafOutput(sumTargets, sumWeights float64) float64 {
	v := groveerrors.SafeDivide(sumTargets, sumWeights)
	return groveerrors.ClipValue(v, -b.opts.MaxTreeOutput, b.opts.MaxTreeOutput)
}

func (b *treeBuilder) sums(docs []int) (sumT, sumW float64) {
	for _, doc := range docs {
		w := b.ds.Weight(doc)
		sumT += b.targets[doc] * w
		sumW += w
	}
	return sumT, sumW
}

// attachQuantileSamples retains up to QuantileSampleCount labels per leaf
// via reservoir sampling, for downstream quantile estimation without the
// full leaf population.
func (b *treeBuilder) attachQuantileSamples(tree *Tree, leafDocs map[int32][]int) {
	order := tree.LeafOrder()
	tree.QuantileSamples = make([][]float64, len(order))
	for i, node := range order {
		tree.QuantileSamples[i] = b.sampleLabels(leafDocs[node])
	}
}

func (b *treeBuilder) sampleLabels(docs []int) []float64 {
	k := b.opts.QuantileSampleCount
	if len(docs) <= k {
		samples := make([]float64, len(docs))
		for i, doc := range docs {
			samples[i] = b.ds.Label(doc)
		}
		return samples
	}

	samples := make([]float64, k)
	for i := 0; i < k; i++ {
		samples[i] = b.ds.Label(docs[i])
	}
	for i := k; i < len(docs); i++ {
		j := b.rng.Intn(i + 1)
		if j < k {
			samples[j] = b.ds.Label(docs[i])
		}
	}
	return samples
}
