// Package confusion accumulates voxelwise agreement between a ground truth
// grid and a test grid in a single pass, and derives overlap, statistical and
// probabilistic metrics from those accumulations without touching the grids
// again.
package confusion

import (
	"fmt"
	"math"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
)

// Counts holds the cardinalities of the confusion matrix. For crisp inputs
// these are whole voxel counts; for fuzzy inputs they are fuzzy
// cardinalities (TP is the sum of min(g, t), etc.). Either way
// TP+FP+FN+TN equals the number of voxels.
type Counts struct {
	TP, FP, FN, TN float64
}

func (c Counts) Total() float64 {
	return c.TP + c.FP + c.FN + c.TN
}

// TruthSize is the ground truth foreground cardinality.
func (c Counts) TruthSize() float64 {
	return c.TP + c.FN
}

// TestSize is the test foreground cardinality.
func (c Counts) TestSize() float64 {
	return c.TP + c.FP
}

func (c Counts) Add(o Counts) Counts {
	return Counts{TP: c.TP + o.TP, FP: c.FP + o.FP, FN: c.FN + o.FN, TN: c.TN + o.TN}
}

// Sums holds the voxelwise sums needed by the interclass correlation and the
// probabilistic distance. g and t are the membership of a voxel in the ground
// truth and test foreground.
type Sums struct {
	N       float64 // number of voxels
	G, T    float64 // Σg, Σt
	GG, TT  float64 // Σg², Σt²
	GT      float64 // Σg·t
	AbsDiff float64 // Σ|g-t|
}

func (s Sums) Add(o Sums) Sums {
	return Sums{
		N: s.N + o.N, G: s.G + o.G, T: s.T + o.T,
		GG: s.GG + o.GG, TT: s.TT + o.TT, GT: s.GT + o.GT,
		AbsDiff: s.AbsDiff + o.AbsDiff,
	}
}

func (s *Sums) add(g, t float64) {
	s.G += g
	s.T += t
	s.GG += g * g
	s.TT += t * t
	s.GT += g * t
	s.AbsDiff += math.Abs(g - t)
}

// LabelStats is everything accumulated for one label. Binary and fuzzy pairs
// have exactly one LabelStats, with Label 1.
type LabelStats struct {
	Label  float64
	Counts Counts
	Sums   Sums
	Truth  Moments
	Test   Moments
}

func (l LabelStats) merge(o LabelStats) LabelStats {
	return LabelStats{
		Label:  l.Label,
		Counts: l.Counts.Add(o.Counts),
		Sums:   l.Sums.Add(o.Sums),
		Truth:  l.Truth.Add(o.Truth),
		Test:   l.Test.Add(o.Test),
	}
}

// Table is the result of one pass over a grid pair.
type Table struct {
	Mode        grid.Kind
	Labels      []LabelStats
	Total       int64
	VoxelVolume float64
	Dims        int
}

// Micro sums the per-label statistics into one, which is what micro-averaged
// metrics are computed from.
func (t *Table) Micro() LabelStats {
	out := LabelStats{Label: math.NaN(), Truth: newMoments(t.Dims), Test: newMoments(t.Dims)}
	for _, l := range t.Labels {
		out = out.merge(l)
	}
	if len(t.Labels) == 1 {
		out.Label = t.Labels[0].Label
	}

	return out
}

// Macro averages f over the labels it applies to. Labels for which f reports
// segeval.ErrNotApplicable are skipped; any other error is returned.
func (t *Table) Macro(f func(LabelStats) (float64, error)) (float64, error) {
	sum, n := 0.0, 0
	for _, l := range t.Labels {
		v, err := f(l)
		if segeval.IsFatal(err) {
			return 0, err
		}
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "macro", "metric applies to none of %d labels", len(t.Labels))
	}

	return sum / float64(n), nil
}

// Label finds the statistics of a given label.
func (t *Table) Label(label float64) (LabelStats, bool) {
	for _, l := range t.Labels {
		if l.Label == label {
			return l, true
		}
	}

	return LabelStats{}, false
}

// Check verifies that every label's counts sum to the voxel total.
func (t *Table) Check() error {
	for _, l := range t.Labels {
		total := l.Counts.Total()
		if math.Abs(total-float64(t.Total)) > 1e-6*float64(t.Total) {
			return fmt.Errorf("label %g: counts sum to %g, expected %d", l.Label, total, t.Total)
		}
	}

	return nil
}

// Compute makes one pass over the pair, in parallel over tiles, and reduces
// the per-worker partial tables by summation.
func Compute(pair *grid.Pair) (*Table, error) {
	geom := pair.Geometry()
	scale := geom.Scale(pair.Unit)
	dims := 3
	if geom.Is2D() {
		dims = 2
	}

	index := make(map[float64]int, len(pair.Labels))
	for i, l := range pair.Labels {
		index[l] = i
	}

	partials := make([][]LabelStats, pair.Workers())
	for w := range partials {
		partials[w] = make([]LabelStats, len(pair.Labels))
		for i, l := range pair.Labels {
			partials[w][i] = LabelStats{Label: l, Truth: newMoments(dims), Test: newMoments(dims)}
		}
	}

	multi := pair.Mode == grid.MultiLabel

	err := pair.ParallelTiles(func(worker int, tile grid.Tile, truth, test []float64) error {
		acc := partials[worker]
		i := 0
		for z := tile.Z0; z < tile.Z1; z++ {
			for y := 0; y < geom.Dims[1]; y++ {
				for x := 0; x < geom.Dims[0]; x++ {
					g, t := truth[i], test[i]
					i++

					if g == 0 && t == 0 {
						if !multi {
							acc[0].Counts.TN++
						}
						continue
					}

					pos := [3]float64{float64(x) * scale[0], float64(y) * scale[1], float64(z) * scale[2]}

					if multi {
						accumulateLabels(acc, index, g, t, pos)
						continue
					}

					accumulateMembership(&acc[0], g, t, pos)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	table := &Table{
		Mode:        pair.Mode,
		Labels:      partials[0],
		Total:       int64(geom.Len()),
		VoxelVolume: geom.VoxelVolume(pair.Unit),
		Dims:        dims,
	}
	for _, partial := range partials[1:] {
		for i := range table.Labels {
			table.Labels[i] = table.Labels[i].merge(partial[i])
		}
	}

	for i := range table.Labels {
		l := &table.Labels[i]
		l.Sums.N = float64(table.Total)

		// Multi-label TN is implicit: every voxel not involved with a label
		// is a true negative for it.
		if multi {
			l.Counts.TN = float64(table.Total) - l.Counts.TP - l.Counts.FP - l.Counts.FN
		}
	}

	return table, nil
}

func accumulateMembership(acc *LabelStats, g, t float64, pos [3]float64) {
	lo, hi := math.Min(g, t), math.Max(g, t)
	acc.Counts.TP += lo
	acc.Counts.FP += t - lo
	acc.Counts.FN += g - lo
	acc.Counts.TN += 1 - hi
	acc.Sums.add(g, t)
	acc.Truth.add(g, pos)
	acc.Test.add(t, pos)
}

func accumulateLabels(acc []LabelStats, index map[float64]int, g, t float64, pos [3]float64) {
	if g == t {
		l := &acc[index[g]]
		l.Counts.TP++
		l.Sums.add(1, 1)
		l.Truth.add(1, pos)
		l.Test.add(1, pos)
		return
	}

	if g != 0 {
		l := &acc[index[g]]
		l.Counts.FN++
		l.Sums.add(1, 0)
		l.Truth.add(1, pos)
	}
	if t != 0 {
		l := &acc[index[t]]
		l.Counts.FP++
		l.Sums.add(0, 1)
		l.Test.add(1, pos)
	}
}
