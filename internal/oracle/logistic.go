package oracle

import (
	"fmt"
	"math"

	"github.com/born-ml/svrg/internal/parallel"
	"github.com/born-ml/svrg/internal/vector"
)

// MetricTestError is the EvalParams key for held-out 0/1 error.
const MetricTestError = "test_error"

// LogisticConfig holds configuration for a logistic regression oracle.
type LogisticConfig struct {
	L2 float64 // L2 regularization strength (default: 0)

	// Held-out set used by EvalParams. Both nil disables test_error.
	TestExamples []vector.Sparse
	TestLabels   []float64

	// Pool parallelizes the held-out evaluation. nil evaluates sequentially.
	Pool *parallel.Pool
}

// LogisticLoss is the logistic (sigmoid cross-entropy) loss for binary
// labels in {0, 1}:
//
//	p = sigmoid(<w, x>)
//	loss = -log(p) if y > 0, -log(1-p) otherwise
//	gradient = x * (p - y)
type LogisticLoss[P vector.Params] struct {
	testExamples []vector.Sparse
	testLabels   []float64
	pool         *parallel.Pool
}

// NewLogisticRegression creates an L2-regularized logistic regression oracle
// over the given training examples. Held-out examples must fit in
// numFeatures like the training examples.
//
// Example:
//
//	o, err := oracle.NewLogisticRegression[*vector.Dense](
//	    ds.Examples, ds.Labels, ds.NumFeatures,
//	    oracle.LogisticConfig{L2: 1e-4},
//	)
func NewLogisticRegression[P vector.Params](examples []vector.Sparse, labels []float64, numFeatures int, cfg LogisticConfig) (*Regularized[P], error) {
	if len(cfg.TestExamples) != len(cfg.TestLabels) {
		return nil, fmt.Errorf("%w: %d held-out examples, %d labels",
			ErrInvalidData, len(cfg.TestExamples), len(cfg.TestLabels))
	}
	for i := range cfg.TestExamples {
		if m := cfg.TestExamples[i].MaxIndex(); m >= numFeatures {
			return nil, fmt.Errorf("%w: held-out example %d has feature %d, dimension is %d",
				vector.ErrDimensionMismatch, i, m, numFeatures)
		}
	}
	loss := &LogisticLoss[P]{
		testExamples: cfg.TestExamples,
		testLabels:   cfg.TestLabels,
		pool:         cfg.Pool,
	}
	return NewRegularized[P](loss, examples, labels, numFeatures, cfg.L2)
}

// Probability returns sigmoid(<params, x>).
func Probability[P vector.Params](params P, x *vector.Sparse) float64 {
	return sigmoid(vector.SparseDot(x, params))
}

// Gradient implements Loss.
func (l *LogisticLoss[P]) Gradient(params P, x *vector.Sparse, y float64, out *vector.Sparse) {
	p := Probability(params, x)
	out.CopyScaled(x, p-y)
}

// Objective implements Loss.
func (l *LogisticLoss[P]) Objective(params P, x *vector.Sparse, y float64) float64 {
	return logLoss(vector.SparseDot(x, params), y)
}

// ObjectiveAndGradient implements Loss with a single dot product.
func (l *LogisticLoss[P]) ObjectiveAndGradient(params P, x *vector.Sparse, y float64, out *vector.Sparse) float64 {
	z := vector.SparseDot(x, params)
	out.CopyScaled(x, sigmoid(z)-y)
	return logLoss(z, y)
}

// EvalParams reports the 0/1 error on the held-out set under key
// MetricTestError. Nothing is reported without a held-out set.
func (l *LogisticLoss[P]) EvalParams(params P, out map[string]float64) {
	n := len(l.testExamples)
	if n == 0 {
		return
	}

	mistakes := make([]int, l.pool.Workers())
	_ = l.pool.Dynamic(n, func(wid, i int) error {
		p := Probability(params, &l.testExamples[i])
		positive := l.testLabels[i] > 0
		if (p < 0.5) == positive {
			mistakes[wid]++
		}
		return nil
	})

	total := 0
	for _, m := range mistakes {
		total += m
	}
	out[MetricTestError] = float64(total) / float64(n)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// logLoss returns -log(sigmoid(z)) for y > 0 and -log(1-sigmoid(z))
// otherwise, evaluated as softplus to stay finite for large |z|.
func logLoss(z, y float64) float64 {
	if y > 0 {
		return softplus(-z)
	}
	return softplus(z)
}

// softplus returns log(1 + exp(t)).
func softplus(t float64) float64 {
	if t > 0 {
		return t + math.Log1p(math.Exp(-t))
	}
	return math.Log1p(math.Exp(t))
}
