package confusion

import (
	"math"

	"github.com/carbocation/segeval"
	"gonum.org/v1/gonum/mat"
)

// Moments are membership-weighted first and second moments of voxel
// coordinates. Only the first Dims axes are used.
type Moments struct {
	Dims int
	W    float64
	S    [3]float64
	SS   [3][3]float64
}

func newMoments(dims int) Moments {
	return Moments{Dims: dims}
}

func (m *Moments) add(w float64, pos [3]float64) {
	if w == 0 {
		return
	}
	m.W += w
	for i := 0; i < m.Dims; i++ {
		m.S[i] += w * pos[i]
		for j := i; j < m.Dims; j++ {
			m.SS[i][j] += w * pos[i] * pos[j]
		}
	}
}

func (m Moments) Add(o Moments) Moments {
	if m.Dims == 0 {
		m.Dims = o.Dims
	}
	m.W += o.W
	for i := range m.S {
		m.S[i] += o.S[i]
		for j := range m.SS[i] {
			m.SS[i][j] += o.SS[i][j]
		}
	}

	return m
}

// Mean is the weighted centroid.
func (m Moments) Mean() []float64 {
	out := make([]float64, m.Dims)
	for i := range out {
		out[i] = m.S[i] / m.W
	}
	return out
}

// Covariance is the weighted population covariance of the coordinates.
func (m Moments) Covariance() *mat.SymDense {
	mean := m.Mean()
	cov := mat.NewSymDense(m.Dims, nil)
	for i := 0; i < m.Dims; i++ {
		for j := i; j < m.Dims; j++ {
			cov.SetSym(i, j, m.SS[i][j]/m.W-mean[i]*mean[j])
		}
	}

	return cov
}

// Mahalanobis is the distance between the centroids of two weighted point
// clouds under their pooled covariance (n1·S1 + n2·S2)/(n1 + n2).
func Mahalanobis(a, b Moments) (float64, error) {
	if a.W == 0 || b.W == 0 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "MAHLNBS", "a segmentation is empty")
	}

	ma, mb := a.Mean(), b.Mean()
	diff := mat.NewVecDense(a.Dims, nil)
	zero := true
	for i := range ma {
		d := ma[i] - mb[i]
		diff.SetVec(i, d)
		if d != 0 {
			zero = false
		}
	}
	if zero {
		return 0, nil
	}

	var pooled mat.SymDense
	pooled.ScaleSym(a.W/(a.W+b.W), a.Covariance())
	var other mat.SymDense
	other.ScaleSym(b.W/(a.W+b.W), b.Covariance())
	var sum mat.SymDense
	sum.AddSym(&pooled, &other)

	var inv mat.Dense
	if err := inv.Inverse(&sum); err != nil {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "MAHLNBS", "pooled covariance is singular: %v", err)
	}

	d2 := mat.Inner(diff, &inv, diff)
	if d2 < 0 || math.IsNaN(d2) {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "MAHLNBS", "pooled covariance is not positive definite")
	}

	return math.Sqrt(d2), nil
}
