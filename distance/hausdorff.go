package distance

import (
	"math"
	"sort"
	"sync"

	"github.com/carbocation/segeval"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"
)

// Directed returns, for every point of from, the distance to the nearest
// point of to. Queries are spread over workers goroutines.
func Directed(from, to BoundarySet, workers int) ([]float64, error) {
	if from.Empty() || to.Empty() {
		return nil, segeval.Errorf(segeval.KindNotApplicable, "distance", "boundary is empty (%d vs %d points)", from.Len(), to.Len())
	}

	// kdtree.New reorders its input
	pts := make(kdtree.Points, len(to.Points))
	copy(pts, to.Points)
	tree := kdtree.New(pts, false)

	out := make([]float64, len(from.Points))
	if workers < 1 {
		workers = 1
	}
	chunk := (len(out) + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(out); lo += chunk {
		hi := lo + chunk
		if hi > len(out) {
			hi = len(out)
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				_, d2 := tree.Nearest(from.Points[i])
				out[i] = math.Sqrt(d2)
			}
		}(lo, hi)
	}
	wg.Wait()

	return out, nil
}

// NormalizeQuantile turns a Hausdorff parameter into a quantile in (0, 1].
// Values above 1 are read as percentages.
func NormalizeQuantile(q float64) (float64, error) {
	if q <= 0 || q > 100 || math.IsNaN(q) {
		return 0, segeval.Errorf(segeval.KindMalformedParameter, "HDRFDST", "quantile %g is outside (0, 100]", q)
	}
	if q > 1 {
		q /= 100
	}

	return q, nil
}

// Pair holds the boundaries of a ground truth and a test region and lazily
// computes, once, the directed distances in both directions for every
// distance metric that needs them.
type Pair struct {
	Truth, Test BoundarySet

	workers int

	once       sync.Once
	truthTest  []float64 // sorted
	testTruth  []float64 // sorted
	computeErr error
}

func NewPair(truth, test BoundarySet, workers int) *Pair {
	return &Pair{Truth: truth, Test: test, workers: workers}
}

func (p *Pair) directed() ([]float64, []float64, error) {
	p.once.Do(func() {
		var err error
		if p.truthTest, err = Directed(p.Truth, p.Test, p.workers); err != nil {
			p.computeErr = err
			return
		}
		if p.testTruth, err = Directed(p.Test, p.Truth, p.workers); err != nil {
			p.computeErr = err
			return
		}
		sort.Float64s(p.truthTest)
		sort.Float64s(p.testTruth)
	})

	return p.truthTest, p.testTruth, p.computeErr
}

// Hausdorff is the symmetric Hausdorff distance: the larger of the two
// directed maxima.
func (p *Pair) Hausdorff() (float64, error) {
	return p.Percentile(1)
}

// Percentile is the larger of the two directed q-quantiles, q in (0, 1].
// q = 1 gives the Hausdorff distance.
func (p *Pair) Percentile(q float64) (float64, error) {
	ab, ba, err := p.directed()
	if err != nil {
		return 0, err
	}

	return math.Max(
		stat.Quantile(q, stat.Empirical, ab, nil),
		stat.Quantile(q, stat.Empirical, ba, nil),
	), nil
}

// Average is the mean of the two directed mean distances.
func (p *Pair) Average() (float64, error) {
	ab, ba, err := p.directed()
	if err != nil {
		return 0, err
	}

	return (stat.Mean(ab, nil) + stat.Mean(ba, nil)) / 2, nil
}

// SymmetricHausdorff is a one-shot Pair(a, b).Hausdorff().
func SymmetricHausdorff(a, b BoundarySet) (float64, error) {
	return NewPair(a, b, 1).Hausdorff()
}

// Percentile is a one-shot Pair(a, b).Percentile(q). q above 1 is read as a
// percentage.
func Percentile(a, b BoundarySet, q float64) (float64, error) {
	q, err := NormalizeQuantile(q)
	if err != nil {
		return 0, err
	}
	return NewPair(a, b, 1).Percentile(q)
}

// AverageDistance is a one-shot Pair(a, b).Average().
func AverageDistance(a, b BoundarySet) (float64, error) {
	return NewPair(a, b, 1).Average()
}
