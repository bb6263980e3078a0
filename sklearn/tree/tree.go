package tree

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

var _ model.Regressor = (*DecisionTreeRegressor)(nil)

// minGain is the smallest impurity decrease that justifies a split.
const minGain = 1e-12

// Node is one node of a fitted tree. Nodes are stored in a flat slice and
// reference their children by index; Left == -1 marks a leaf.
type Node struct {
	Feature   int     // Feature index for split (internal nodes)
	Threshold float64 // Samples with x[Feature] <= Threshold go left
	Left      int
	Right     int
	Value     float64 // Predicted value
	NSamples  int     // Number of training samples at this node
	Depth     int
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// DecisionTreeRegressor implements a CART regression tree
type DecisionTreeRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	Criterion       string // "squared_error", "friedman_mse", "absolute_error", "poisson"
	MaxDepth        int    // Maximum depth of tree (0 = unlimited)
	MinSamplesSplit int    // Minimum samples to split a node
	MinSamplesLeaf  int    // Minimum samples in a leaf

	// Tree structure
	Nodes              []Node
	NFeatures          int
	FeatureImportances []float64
}

// Option is a functional option for DecisionTreeRegressor
type Option func(*DecisionTreeRegressor)

// NewDecisionTreeRegressor creates a new regression tree
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		Criterion:       CriterionSquaredError,
		MaxDepth:        0, // Unlimited
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the splitting criterion
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.Criterion = criterion
	}
}

// WithMaxDepth sets the maximum tree depth
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.MaxDepth = depth
	}
}

// WithMinSamplesSplit sets minimum samples to split
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets minimum samples in leaf
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.MinSamplesLeaf = n
	}
}

// Columns copies X into feature-major slices, the layout FitColumns expects.
func Columns(X mat.Matrix) [][]float64 {
	_, c := X.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols
}

// Fit trains the tree on all rows of X
func (dt *DecisionTreeRegressor) Fit(X mat.Matrix, y mat.Vector) error {
	r, _, err := model.CheckFitInput("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	return dt.FitColumns(Columns(X), model.VecToSlice(y), idx)
}

// FitColumns trains the tree on the rows listed in idx. Rows may repeat,
// which is how bootstrap samples are expressed. cols and y are not modified.
func (dt *DecisionTreeRegressor) FitColumns(cols [][]float64, y []float64, idx []int) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if err := dt.validate(); err != nil {
		return err
	}
	if len(idx) == 0 || len(cols) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	crit, _ := newCriterion(dt.Criterion)
	if dt.Criterion == CriterionPoisson {
		var sum float64
		for _, i := range idx {
			if y[i] < 0 {
				return errors.NewValueError("DecisionTreeRegressor.Fit", "poisson criterion requires non-negative y")
			}
			sum += y[i]
		}
		if sum <= 0 {
			return errors.NewValueError("DecisionTreeRegressor.Fit", "poisson criterion requires sum(y) > 0")
		}
	}

	b := &builder{
		dt:          dt,
		crit:        crit,
		cols:        cols,
		y:           y,
		importances: make([]float64, len(cols)),
	}
	b.nodes = make([]Node, 0, 2*len(idx))
	b.build(append([]int(nil), idx...), 0)

	var total float64
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}

	dt.Nodes = b.nodes
	dt.NFeatures = len(cols)
	dt.FeatureImportances = b.importances
	dt.SetFitted()
	return nil
}

func (dt *DecisionTreeRegressor) validate() error {
	if _, ok := newCriterion(dt.Criterion); !ok {
		return errors.NewValidationError("criterion",
			"must be one of squared_error, friedman_mse, absolute_error, poisson", dt.Criterion)
	}
	if dt.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 = unlimited)", dt.MaxDepth)
	}
	if dt.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.MinSamplesSplit)
	}
	if dt.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.MinSamplesLeaf)
	}
	return nil
}

type builder struct {
	dt          *DecisionTreeRegressor
	crit        criterion
	cols        [][]float64
	y           []float64
	nodes       []Node
	importances []float64
}

// build appends the subtree for idx and returns its node index
func (b *builder) build(idx []int, depth int) int {
	ys := make([]float64, len(idx))
	for i, s := range idx {
		ys[i] = b.y[s]
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    b.crit.leafValue(ys),
		NSamples: len(idx),
		Depth:    depth,
	})

	if b.shouldStop(ys, depth) {
		return id
	}

	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, s := range idx {
		if b.cols[feature][s] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	b.importances[feature] += gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *builder) shouldStop(ys []float64, depth int) bool {
	n := len(ys)
	if n < b.dt.MinSamplesSplit || n < 2*b.dt.MinSamplesLeaf {
		return true
	}
	if b.dt.MaxDepth > 0 && depth >= b.dt.MaxDepth {
		return true
	}
	for _, v := range ys[1:] {
		if v != ys[0] {
			return false
		}
	}
	return true
}

// bestSplit scans every feature in order; the first strictly better split wins
func (b *builder) bestSplit(idx []int) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	minLeaf := b.dt.MinSamplesLeaf
	bestGain := minGain

	order := make([]int, n)
	ys := make([]float64, n)
	for f, col := range b.cols {
		copy(order, idx)
		sort.SliceStable(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })
		if col[order[0]] == col[order[n-1]] {
			continue
		}
		for i, s := range order {
			ys[i] = b.y[s]
		}

		gains := b.crit.gains(ys)
		for k := minLeaf; k <= n-minLeaf; k++ {
			lo, hi := col[order[k-1]], col[order[k]]
			if lo == hi {
				continue
			}
			if gains[k] > bestGain {
				bestGain = gains[k]
				feature = f
				threshold = lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}

// PredictRow returns the prediction for a single feature vector
func (dt *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	return PredictNodes(dt.Nodes, x)
}

// PredictNodes walks a flat node slice from the root to a leaf
func PredictNodes(nodes []Node, x []float64) float64 {
	i := 0
	for !nodes[i].IsLeaf() {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return nodes[i].Value
}

// Predict makes predictions for input data
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("DecisionTreeRegressor", dt.IsFitted(), dt.NFeatures, X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(r, nil)
	row := make([]float64, dt.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		pred.SetVec(i, dt.PredictRow(row))
	}
	return pred, nil
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeRegressor) GetParams() model.Params {
	return model.Params{
		"criterion":         dt.Criterion,
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
	}
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("DecisionTreeRegressor", "criterion", "max_depth", "min_samples_split", "min_samples_leaf"); err != nil {
		return err
	}
	var err error
	if dt.Criterion, err = params.GetString("criterion", dt.Criterion); err != nil {
		return err
	}
	if dt.MaxDepth, err = params.GetInt("max_depth", dt.MaxDepth); err != nil {
		return err
	}
	if dt.MinSamplesSplit, err = params.GetInt("min_samples_split", dt.MinSamplesSplit); err != nil {
		return err
	}
	if dt.MinSamplesLeaf, err = params.GetInt("min_samples_leaf", dt.MinSamplesLeaf); err != nil {
		return err
	}
	return dt.validate()
}

// GetDepth returns the depth of the fitted tree
func (dt *DecisionTreeRegressor) GetDepth() int {
	depth := 0
	for _, n := range dt.Nodes {
		if n.Depth > depth {
			depth = n.Depth
		}
	}
	return depth
}

// GetNLeaves returns the number of leaves of the fitted tree
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	count := 0
	for _, n := range dt.Nodes {
		if n.IsLeaf() {
			count++
		}
	}
	return count
}

// String returns a short description
func (dt *DecisionTreeRegressor) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(criterion=%s)", dt.Criterion)
	}
	return fmt.Sprintf("DecisionTreeRegressor(criterion=%s, depth=%d, leaves=%d)",
		dt.Criterion, dt.GetDepth(), dt.GetNLeaves())
}
