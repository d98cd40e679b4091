// Package lesion evaluates detection: ground truth lesions are matched one
// to one against candidate lesions, optionally after discarding lesions that
// lie outside a mask.
package lesion

import (
	"fmt"
	"math"
	"sort"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
)

// Lesion is a detected or annotated lesion. Voxels, when known, are linear
// indices into the grid described by Geometry; lesions read from a point list
// only have a center and possibly a radius.
type Lesion struct {
	ID     string
	Center [3]float64
	Radius float64
	Voxels []int

	// Geometry is the grid Voxels index into. Nil means the grid shared by
	// every other lesion and the mask.
	Geometry *grid.Geometry
}

type Status uint8

const (
	TruePositive Status = iota
	FalsePositive
	FalseNegative
)

func (s Status) String() string {
	switch s {
	case TruePositive:
		return "TP"
	case FalsePositive:
		return "FP"
	case FalseNegative:
		return "FN"
	}
	return "unknown"
}

// Match records the fate of one lesion. TruthID is empty for false
// positives and TestID for false negatives.
type Match struct {
	TruthID  string
	TestID   string
	Status   Status
	Overlap  int
	Distance float64
}

type Options struct {
	// Tolerance is the minimum center distance, in Unit, at which two
	// lesions are considered close enough to match even if their radii are
	// smaller.
	Tolerance float64

	// Unit of lesion centers, used to locate centers inside the mask.
	Unit grid.Unit
}

type Report struct {
	Matches []Match

	TP, FP, FN int

	// Excluded counts lesions dropped by the mask.
	ExcludedTruth, ExcludedTest int

	Precision, Recall, FMeasure float64
}

// Evaluate matches truth against test lesions. A candidate pair is eligible
// when the lesions share a voxel or their centers are no further apart than
// the larger of the two radii and Options.Tolerance. Eligible pairs are
// assigned greedily, largest overlap first, then shortest distance, then
// input order.
func Evaluate(truth, test []Lesion, mask *grid.Grid, opts Options) (*Report, error) {
	if err := unique(truth, "ground truth"); err != nil {
		return nil, err
	}
	if err := unique(test, "test"); err != nil {
		return nil, err
	}
	if err := sameGrid(mask, truth, test); err != nil {
		return nil, err
	}

	report := &Report{}

	if mask != nil {
		inside, err := readMask(mask)
		if err != nil {
			return nil, segeval.Wrap(segeval.KindInputLoad, "mask", err)
		}
		scale := mask.Geometry().Scale(opts.Unit)

		var dropped int
		truth, dropped = filter(truth, inside, mask.Geometry(), scale)
		report.ExcludedTruth = dropped
		test, dropped = filter(test, inside, mask.Geometry(), scale)
		report.ExcludedTest = dropped
	}

	type candidate struct {
		gt, ts   int
		overlap  int
		distance float64
	}

	owner := make(map[int]int)
	for i, l := range truth {
		for _, v := range l.Voxels {
			owner[v] = i
		}
	}

	var candidates []candidate
	for j, ts := range test {
		overlaps := make(map[int]int)
		for _, v := range ts.Voxels {
			if i, ok := owner[v]; ok {
				overlaps[i]++
			}
		}

		for i, gt := range truth {
			d := distance(gt.Center, ts.Center)
			reach := math.Max(math.Max(gt.Radius, ts.Radius), opts.Tolerance)
			if overlaps[i] == 0 && d > reach {
				continue
			}
			candidates = append(candidates, candidate{gt: i, ts: j, overlap: overlaps[i], distance: d})
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		x, y := candidates[a], candidates[b]
		if x.overlap != y.overlap {
			return x.overlap > y.overlap
		}
		if x.distance != y.distance {
			return x.distance < y.distance
		}
		if x.gt != y.gt {
			return x.gt < y.gt
		}
		return x.ts < y.ts
	})

	truthMatched := make([]bool, len(truth))
	testMatched := make([]bool, len(test))
	for _, c := range candidates {
		if truthMatched[c.gt] || testMatched[c.ts] {
			continue
		}
		truthMatched[c.gt], testMatched[c.ts] = true, true
		report.TP++
		report.Matches = append(report.Matches, Match{
			TruthID:  truth[c.gt].ID,
			TestID:   test[c.ts].ID,
			Status:   TruePositive,
			Overlap:  c.overlap,
			Distance: c.distance,
		})
	}

	for i, l := range truth {
		if !truthMatched[i] {
			report.FN++
			report.Matches = append(report.Matches, Match{TruthID: l.ID, Status: FalseNegative, Distance: math.NaN()})
		}
	}
	for j, l := range test {
		if !testMatched[j] {
			report.FP++
			report.Matches = append(report.Matches, Match{TestID: l.ID, Status: FalsePositive, Distance: math.NaN()})
		}
	}

	report.Precision = rate(report.TP, report.TP+report.FP)
	report.Recall = rate(report.TP, report.TP+report.FN)
	if p, r := report.Precision, report.Recall; p+r > 0 {
		report.FMeasure = 2 * p * r / (p + r)
	}

	return report, nil
}

// rate is num/den, or 1 when there was nothing to get wrong.
func rate(num, den int) float64 {
	if den == 0 {
		return 1
	}
	return float64(num) / float64(den)
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func unique(set []Lesion, which string) error {
	seen := make(map[string]struct{}, len(set))
	for _, l := range set {
		if _, exists := seen[l.ID]; exists {
			return segeval.Errorf(segeval.KindInputLoad, "lesions", "%s lesion %q appears more than once", which, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// sameGrid verifies that all voxel indices refer to one grid, the mask's when
// there is one.
func sameGrid(mask *grid.Grid, sets ...[]Lesion) error {
	var ref *grid.Geometry
	if mask != nil {
		g := mask.Geometry()
		ref = &g
	}
	for _, set := range sets {
		for _, l := range set {
			if l.Geometry == nil {
				continue
			}
			if ref == nil {
				ref = l.Geometry
				continue
			}
			if err := ref.Compatible(*l.Geometry); err != nil {
				return &segeval.Error{Kind: segeval.KindIncompatibleGrids, Op: "lesions", Err: fmt.Errorf("lesion %q: %w", l.ID, err)}
			}
		}
	}

	return nil
}

// readMask loads the mask's foreground into a dense bitmap.
func readMask(mask *grid.Grid) ([]bool, error) {
	geom := mask.Geometry()
	inside := make([]bool, geom.Len())

	var buf []float64
	for _, t := range mask.Tiles() {
		var err error
		if buf, err = mask.ReadTile(t, buf); err != nil {
			return nil, err
		}
		offset := t.Z0 * geom.PlaneLen()
		for k, v := range buf {
			inside[offset+k] = grid.Membership(v) >= 0.5
		}
	}

	return inside, nil
}

// filter keeps lesions with at least one voxel inside the mask. Lesions
// without voxels are kept when their center falls inside.
func filter(set []Lesion, inside []bool, geom grid.Geometry, scale [3]float64) ([]Lesion, int) {
	out := make([]Lesion, 0, len(set))
	for _, l := range set {
		if l.Voxels == nil {
			x := int(math.Round(l.Center[0] / scale[0]))
			y := int(math.Round(l.Center[1] / scale[1]))
			z := int(math.Round(l.Center[2] / scale[2]))
			if geom.Contains(x, y, z) && inside[geom.Index(x, y, z)] {
				out = append(out, l)
			}
			continue
		}

		for _, v := range l.Voxels {
			if v >= 0 && v < len(inside) && inside[v] {
				out = append(out, l)
				break
			}
		}
	}

	return out, len(set) - len(out)
}
