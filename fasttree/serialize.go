package fasttree

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

// ModelSignature is the 8-byte magic prefix of a serialized predictor.
const ModelSignature = "GRVFTREE"

// Format versions. verWritten identifies the layout a stream was written in,
// verReadable is the oldest layout a reader of that version could still
// parse, and verWeCanReadBack is the oldest layout this code parses.
//
//	2: base layout (trees, calibrator)
//	3: adds the per-leaf quantile sample block
const (
	verWrittenCur    uint32 = 3
	verReadableCur   uint32 = 2
	verWeCanReadBack uint32 = 2
)

// knownVersions is the explicit set of layouts this loader understands.
var knownVersions = map[uint32]bool{
	2: true,
	3: true,
}

// Plausibility bounds on count fields read from a stream. A corrupt length
// must fail as a FormatError before any allocation, not blow up the process.
const (
	maxStreamTrees   = 1 << 20
	maxStreamNodes   = 1 << 22
	maxStreamSamples = 1 << 20
	maxStreamBytes   = 1 << 26
	maxStreamCats    = 256 // categories are uint8 bin values
)

// VersionInfo is the version triple stored in every serialized predictor.
type VersionInfo struct {
	VerWritten       uint32
	VerReadable      uint32
	VerWeCanReadBack uint32
}

// CurrentVersion returns the version triple written by Save.
func CurrentVersion() VersionInfo {
	return VersionInfo{
		VerWritten:       verWrittenCur,
		VerReadable:      verReadableCur,
		VerWeCanReadBack: verWeCanReadBack,
	}
}

// checkLoadable decides whether a stored version triple can be parsed by this
// code. A stream older than verWeCanReadBack is rejected; a stream newer than
// verWrittenCur is accepted only when its writer declared it readable by us.
func (v VersionInfo) checkLoadable(op string) error {
	if v.VerWritten < verWeCanReadBack {
		return groveerrors.NewVersionRangeError(op, v.VerWritten, verWeCanReadBack, verWrittenCur)
	}
	if v.VerWritten > verWrittenCur {
		if v.VerReadable > verWrittenCur {
			return groveerrors.NewVersionRangeError(op, v.VerWritten, verWeCanReadBack, verWrittenCur)
		}
		return nil
	}
	if !knownVersions[v.VerWritten] {
		return groveerrors.NewVersionRangeError(op, v.VerWritten, verWeCanReadBack, verWrittenCur)
	}
	return nil
}

// ===========================================================================
//
//	Writing
//
// ===========================================================================

type binaryWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (bw *binaryWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

func (bw *binaryWriter) u8(v uint8) {
	bw.buf[0] = v
	bw.write(bw.buf[:1])
}

func (bw *binaryWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	bw.write(bw.buf[:4])
}

func (bw *binaryWriter) i32(v int32) { bw.u32(uint32(v)) }

func (bw *binaryWriter) f64(v float64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], math.Float64bits(v))
	bw.write(bw.buf[:8])
}

func (bw *binaryWriter) bytes(p []byte) {
	bw.u32(uint32(len(p)))
	bw.write(p)
}

func (bw *binaryWriter) str(s string) { bw.bytes([]byte(s)) }

// savePredictor writes the predictor in the current layout. The stored
// version is always the current one regardless of the version a loaded
// predictor originally carried.
func savePredictor(w io.Writer, p *Predictor) error {
	bw := &binaryWriter{w: w}

	bw.write([]byte(ModelSignature))
	ver := CurrentVersion()
	bw.u32(ver.VerWritten)
	bw.u32(ver.VerReadable)
	bw.u32(ver.VerWeCanReadBack)

	bw.u32(uint32(p.numFeatures))
	bw.str(p.trainArgs)

	bw.u32(uint32(p.ensemble.NumTrees()))
	for i := range p.ensemble.Trees {
		bw.f64(p.ensemble.Weights[i])
		writeTree(bw, &p.ensemble.Trees[i])
	}

	if p.calibrator != nil {
		bw.u8(1)
		bw.str(p.calibrator.Name())
		payload, err := p.calibrator.MarshalBinary()
		if err != nil {
			return groveerrors.Wrap(err, "Predictor.Save: marshal calibrator")
		}
		bw.bytes(payload)
	} else {
		bw.u8(0)
	}

	if bw.err != nil {
		return groveerrors.Wrap(bw.err, "Predictor.Save")
	}
	return nil
}

func writeTree(bw *binaryWriter, t *Tree) {
	bw.u32(uint32(len(t.Nodes)))
	for i := range t.Nodes {
		writeNode(bw, &t.Nodes[i])
	}
	bw.u32(uint32(t.NumLeaves))

	// Quantile sample block, one entry per leaf in arena order.
	bw.u32(uint32(len(t.QuantileSamples)))
	for _, samples := range t.QuantileSamples {
		bw.u32(uint32(len(samples)))
		for _, s := range samples {
			bw.f64(s)
		}
	}
}

func writeNode(bw *binaryWriter, n *Node) {
	bw.u8(uint8(n.Kind))
	switch n.Kind {
	case LeafNode:
		bw.f64(n.LeafValue)
		bw.i32(n.Count)
	case NumericalNode:
		bw.i32(n.SplitFeature)
		bw.u32(n.BinThreshold)
		bw.f64(n.Threshold)
		bw.f64(n.Gain)
		bw.i32(n.LeftChild)
		bw.i32(n.RightChild)
		bw.i32(n.Count)
	case CategoricalNode:
		bw.i32(n.SplitFeature)
		bw.u32(uint32(len(n.Categories)))
		for _, c := range n.Categories {
			bw.u32(c)
		}
		bw.f64(n.Gain)
		bw.i32(n.LeftChild)
		bw.i32(n.RightChild)
		bw.i32(n.Count)
	}
}

// ===========================================================================
//
//	Reading
//
// ===========================================================================

type binaryReader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (br *binaryReader) read(p []byte) {
	if br.err != nil {
		return
	}
	if _, err := io.ReadFull(br.r, p); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			br.err = groveerrors.ErrTruncatedStream
			return
		}
		br.err = err
	}
}

func (br *binaryReader) u8() uint8 {
	br.read(br.buf[:1])
	return br.buf[0]
}

func (br *binaryReader) u32() uint32 {
	br.read(br.buf[:4])
	if br.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(br.buf[:4])
}

func (br *binaryReader) i32() int32 { return int32(br.u32()) }

// count reads a u32 count and rejects values above the plausibility bound for
// its block kind.
func (br *binaryReader) count(max uint32, what string) int {
	n := br.u32()
	if br.err != nil {
		return 0
	}
	if n > max {
		br.err = groveerrors.NewFormatError("LoadPredictor",
			fmt.Sprintf("implausible %s count %d in stream", what, n))
		return 0
	}
	return int(n)
}

func (br *binaryReader) f64() float64 {
	br.read(br.buf[:8])
	if br.err != nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(br.buf[:8]))
}

func (br *binaryReader) bytes() []byte {
	n := br.count(maxStreamBytes, "byte block")
	if br.err != nil {
		return nil
	}
	p := make([]byte, n)
	br.read(p)
	if br.err != nil {
		return nil
	}
	return p
}

func (br *binaryReader) str() string { return string(br.bytes()) }

// LoadPredictor reads a predictor written by Save. Loading is all-or-nothing:
// an unknown signature, an unsupported version or a truncated stream yields
// an error and no partial ensemble.
func LoadPredictor(r io.Reader) (*Predictor, error) {
	const op = "LoadPredictor"
	br := &binaryReader{r: r}

	sig := make([]byte, len(ModelSignature))
	br.read(sig)
	if br.err != nil {
		return nil, groveerrors.Wrap(br.err, op)
	}
	if string(sig) != ModelSignature {
		err := &groveerrors.FormatError{
			Op:        op,
			Signature: string(sig),
			Reason:    "unknown model signature",
		}
		return nil, groveerrors.WithStack(err)
	}

	ver := VersionInfo{
		VerWritten:       br.u32(),
		VerReadable:      br.u32(),
		VerWeCanReadBack: br.u32(),
	}
	if br.err != nil {
		return nil, groveerrors.Wrap(br.err, op)
	}
	if err := ver.checkLoadable(op); err != nil {
		return nil, err
	}
	hasQuantiles := ver.VerWritten >= 3

	numFeatures := int(br.u32())
	trainArgs := br.str()

	ensemble := NewEnsemble(numFeatures)
	numTrees := br.count(maxStreamTrees, "tree")
	for i := 0; i < numTrees; i++ {
		weight := br.f64()
		tree, err := readTree(br, hasQuantiles)
		if err != nil {
			return nil, err
		}
		if br.err != nil {
			return nil, groveerrors.Wrap(br.err, op)
		}
		ensemble.AddTree(tree, weight)
	}

	p := NewPredictor(ensemble, trainArgs)

	if br.u8() == 1 {
		name := br.str()
		payload := br.bytes()
		if br.err != nil {
			return nil, groveerrors.Wrap(br.err, op)
		}
		calibrator, err := newCalibratorByName(name)
		if err != nil {
			return nil, err
		}
		if err := calibrator.UnmarshalBinary(payload); err != nil {
			return nil, err
		}
		p.calibrator = calibrator
	}
	if br.err != nil {
		return nil, groveerrors.Wrap(br.err, op)
	}
	return p, nil
}

func readTree(br *binaryReader, hasQuantiles bool) (Tree, error) {
	var t Tree

	numNodes := br.count(maxStreamNodes, "node")
	if br.err != nil {
		return t, nil
	}
	t.Nodes = make([]Node, numNodes)
	for i := range t.Nodes {
		if err := readNode(br, &t.Nodes[i]); err != nil {
			return t, err
		}
	}
	t.NumLeaves = int(br.u32())

	if hasQuantiles {
		numLeaves := br.count(maxStreamNodes, "leaf")
		if br.err != nil {
			return t, nil
		}
		t.QuantileSamples = make([][]float64, numLeaves)
		for i := range t.QuantileSamples {
			n := br.count(maxStreamSamples, "quantile sample")
			if br.err != nil {
				return t, nil
			}
			samples := make([]float64, n)
			for j := range samples {
				samples[j] = br.f64()
			}
			t.QuantileSamples[i] = samples
		}
	}
	return t, nil
}

func readNode(br *binaryReader, n *Node) error {
	kind := NodeKind(br.u8())
	if br.err != nil {
		return nil
	}
	n.Kind = kind

	switch kind {
	case LeafNode:
		n.LeafValue = br.f64()
		n.Count = br.i32()
		n.LeftChild, n.RightChild = -1, -1
	case NumericalNode:
		n.SplitFeature = br.i32()
		n.BinThreshold = br.u32()
		n.Threshold = br.f64()
		n.Gain = br.f64()
		n.LeftChild = br.i32()
		n.RightChild = br.i32()
		n.Count = br.i32()
	case CategoricalNode:
		n.SplitFeature = br.i32()
		numCategories := br.count(maxStreamCats, "category")
		if br.err != nil {
			return nil
		}
		n.Categories = make([]uint32, numCategories)
		for i := range n.Categories {
			n.Categories[i] = br.u32()
		}
		n.Gain = br.f64()
		n.LeftChild = br.i32()
		n.RightChild = br.i32()
		n.Count = br.i32()
	default:
		return groveerrors.NewFormatError("LoadPredictor",
			"unknown node kind in tree block")
	}
	return nil
}
