package confusion

import (
	"math"

	"github.com/carbocation/segeval"
)

// ratio divides, returning empty when the denominator is zero.
func ratio(num, den, empty float64) float64 {
	if den == 0 {
		return empty
	}
	return num / den
}

// Dice is 2TP / (2TP + FP + FN). Two empty segmentations agree perfectly.
func Dice(c Counts) float64 {
	return ratio(2*c.TP, 2*c.TP+c.FP+c.FN, 1)
}

// Jaccard is TP / (TP + FP + FN).
func Jaccard(c Counts) float64 {
	return ratio(c.TP, c.TP+c.FP+c.FN, 1)
}

// Sensitivity is the true positive rate, or recall.
func Sensitivity(c Counts) float64 {
	return ratio(c.TP, c.TP+c.FN, 1)
}

// Specificity is the true negative rate.
func Specificity(c Counts) float64 {
	return ratio(c.TN, c.TN+c.FP, 1)
}

func Precision(c Counts) float64 {
	return ratio(c.TP, c.TP+c.FP, 1)
}

// Fallout is the false positive rate, 1 - Specificity.
func Fallout(c Counts) float64 {
	return ratio(c.FP, c.FP+c.TN, 0)
}

func Accuracy(c Counts) float64 {
	return ratio(c.TP+c.TN, c.Total(), 1)
}

// FMeasure is (1+β²)·P·R / (β²·P + R). β = 1 gives the Dice coefficient.
func FMeasure(c Counts, beta float64) float64 {
	p, r := Precision(c), Sensitivity(c)
	b2 := beta * beta
	return ratio((1+b2)*p*r, b2*p+r, 0)
}

// GlobalConsistencyError is the smaller of the two directional refinement
// errors averaged over all voxels.
func GlobalConsistencyError(c Counts) float64 {
	n := c.Total()
	if n == 0 {
		return 0
	}
	e1 := ratio(c.FN*(c.FN+2*c.TP), c.TP+c.FN, 0) + ratio(c.FP*(c.FP+2*c.TN), c.TN+c.FP, 0)
	e2 := ratio(c.FP*(c.FP+2*c.TP), c.TP+c.FP, 0) + ratio(c.FN*(c.FN+2*c.TN), c.TN+c.FN, 0)

	return math.Min(e1, e2) / n
}

// VolumetricSimilarity is 1 - |FN - FP| / (2TP + FP + FN).
func VolumetricSimilarity(c Counts) float64 {
	return 1 - ratio(math.Abs(c.FN-c.FP), 2*c.TP+c.FP+c.FN, 0)
}

// Kappa is Cohen's kappa: agreement corrected for agreement expected by
// chance.
func Kappa(c Counts) float64 {
	n := c.Total()
	if n == 0 {
		return 1
	}
	fa := c.TP + c.TN
	fc := ((c.TN+c.FN)*(c.TN+c.FP) + (c.FP+c.TP)*(c.FN+c.TP)) / n

	return ratio(fa-fc, n-fc, 1)
}

// AUC is the area under the ROC curve of a single operating point,
// 1 - (FPR + FNR)/2.
func AUC(c Counts) float64 {
	fpr := ratio(c.FP, c.FP+c.TN, 0)
	fnr := ratio(c.FN, c.FN+c.TP, 0)
	return 1 - (fpr+fnr)/2
}

// pairCounts returns the pair-counting agreements a, b, c, d used by the
// (adjusted) Rand index.
func pairCounts(cn Counts) (a, b, c, d float64) {
	n := cn.Total()
	sq := cn.TP*cn.TP + cn.FP*cn.FP + cn.TN*cn.TN + cn.FN*cn.FN
	a = (cn.TP*(cn.TP-1) + cn.FP*(cn.FP-1) + cn.TN*(cn.TN-1) + cn.FN*(cn.FN-1)) / 2
	b = ((cn.TP+cn.FN)*(cn.TP+cn.FN) + (cn.TN+cn.FP)*(cn.TN+cn.FP) - sq) / 2
	c = ((cn.TP+cn.FP)*(cn.TP+cn.FP) + (cn.TN+cn.FN)*(cn.TN+cn.FN) - sq) / 2
	d = n*(n-1)/2 - (a + b + c)
	return
}

func RandIndex(cn Counts) (float64, error) {
	if cn.Total() < 2 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "RNDIND", "fewer than two voxels")
	}
	a, b, c, d := pairCounts(cn)

	return (a + d) / (a + b + c + d), nil
}

func AdjustedRandIndex(cn Counts) (float64, error) {
	if cn.Total() < 2 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "ADJRIND", "fewer than two voxels")
	}
	a, b, c, d := pairCounts(cn)

	return ratio(2*(a*d-b*c), c*c+b*b+2*a*d+(a+d)*(c+b), 1), nil
}

func entropy(ps ...float64) float64 {
	h := 0.0
	for _, p := range ps {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// entropies returns the marginal entropies of truth and test and their joint
// entropy, in bits.
func entropies(c Counts) (hg, ht, joint float64) {
	n := c.Total()
	if n == 0 {
		return 0, 0, 0
	}
	hg = entropy((c.TP+c.FN)/n, (c.TN+c.FP)/n)
	ht = entropy((c.TP+c.FP)/n, (c.TN+c.FN)/n)
	joint = entropy(c.TP/n, c.FN/n, c.FP/n, c.TN/n)
	return
}

// MutualInformation is H(g) + H(t) - H(g, t), in bits.
func MutualInformation(c Counts) float64 {
	hg, ht, joint := entropies(c)
	return math.Max(0, hg+ht-joint)
}

// VariationOfInformation is H(g) + H(t) - 2·MI, in bits.
func VariationOfInformation(c Counts) float64 {
	hg, ht, _ := entropies(c)
	return math.Max(0, hg+ht-2*MutualInformation(c))
}

// InterclassCorrelation is the one-way intraclass correlation of the two
// membership vectors, treating each voxel as a subject rated twice.
func InterclassCorrelation(s Sums) (float64, error) {
	n := s.N
	if n < 2 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "ICCORR", "fewer than two voxels")
	}

	sumMean := (s.G + s.T) / 2
	sumMeanSq := (s.GG + 2*s.GT + s.TT) / 4
	mu := sumMean / n
	ssb := math.Max(0, sumMeanSq-n*mu*mu)
	ssw := math.Max(0, s.GG-2*s.GT+s.TT)

	msb := 2 * ssb / (n - 1)
	msw := ssw / 2 / n

	return ratio(msb-msw, msb+msw, 1), nil
}

// ProbabilisticDistance is Σ|g - t| / (2·Σg·t).
func ProbabilisticDistance(s Sums) (float64, error) {
	if s.GT == 0 {
		if s.AbsDiff == 0 {
			return 0, nil
		}
		return 0, segeval.Errorf(segeval.KindNotApplicable, "PROBDST", "segmentations do not overlap")
	}

	return s.AbsDiff / (2 * s.GT), nil
}

// ReferenceVolume is the ground truth foreground volume.
func ReferenceVolume(c Counts, voxelVolume float64) float64 {
	return c.TruthSize() * voxelVolume
}

// SegmentedVolume is the test foreground volume.
func SegmentedVolume(c Counts, voxelVolume float64) float64 {
	return c.TestSize() * voxelVolume
}

func VolumeDifference(c Counts, voxelVolume float64) float64 {
	return math.Abs(SegmentedVolume(c, voxelVolume) - ReferenceVolume(c, voxelVolume))
}
