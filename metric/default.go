package metric

const (
	DICE    ID = "DICE"
	JACRD   ID = "JACRD"
	AUC     ID = "AUC"
	KAPPA   ID = "KAPPA"
	RNDIND  ID = "RNDIND"
	ADJRIND ID = "ADJRIND"
	ICCORR  ID = "ICCORR"
	VOLSMTY ID = "VOLSMTY"
	MUTINF  ID = "MUTINF"
	HDRFDST ID = "HDRFDST"
	AVGDIST ID = "AVGDIST"
	MAHLNBS ID = "MAHLNBS"
	VARINFO ID = "VARINFO"
	GCOERR  ID = "GCOERR"
	PROBDST ID = "PROBDST"
	SNSVTY  ID = "SNSVTY"
	SPCFTY  ID = "SPCFTY"
	PRCISON ID = "PRCISON"
	FMEASR  ID = "FMEASR"
	ACURCY  ID = "ACURCY"
	FALLOUT ID = "FALLOUT"
	REFVOL  ID = "REFVOL"
	SEGVOL  ID = "SEGVOL"
	VOLDIFF ID = "VOLDIFF"
	TP      ID = "TP"
	FP      ID = "FP"
	TN      ID = "TN"
	FN      ID = "FN"
)

// DefaultVisceralExclusions is the stock list of metrics dropped by the
// "visceral" bundle. It can be replaced with WithVisceralExclusions.
var DefaultVisceralExclusions = []ID{GCOERR, MAHLNBS, PROBDST, VARINFO}

var defaultCatalog *Catalog

func init() {
	c, err := NewCatalog(DefaultDescriptors(), WithVisceralExclusions(DefaultVisceralExclusions...))
	if err != nil {
		panic(err)
	}
	defaultCatalog = c
}

// Default returns the process-wide catalog of built-in metrics. It is built
// once at init and never mutated.
func Default() *Catalog {
	return defaultCatalog
}

// DefaultDescriptors lists the built-in metrics in canonical order. A fresh
// slice is returned on every call so callers may build variant catalogs.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{ID: DICE, Name: "Dice coefficient", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Dice coefficient (F1-measure), 2TP/(2TP+FP+FN)"},
		{ID: JACRD, Name: "Jaccard index", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Jaccard index, TP/(TP+FP+FN)"},
		{ID: AUC, Name: "Area under ROC curve", Category: Probabilistic, NeedsCounts: true, EmptyValue: 1,
			Help: "Area under the ROC curve of a single operating point"},
		{ID: KAPPA, Name: "Cohen's kappa", Category: Probabilistic, NeedsCounts: true, EmptyValue: 1,
			Help: "Cohen's kappa, agreement corrected for chance"},
		{ID: RNDIND, Name: "Rand index", Category: Statistical, NeedsCounts: true, EmptyValue: 1,
			Help: "Rand index over all voxel pairs"},
		{ID: ADJRIND, Name: "Adjusted Rand index", Category: Statistical, NeedsCounts: true, EmptyValue: 1,
			Help: "Rand index adjusted for chance"},
		{ID: ICCORR, Name: "Interclass correlation", Category: Probabilistic, NeedsCounts: true, EmptyValue: 1,
			Help: "Interclass correlation of the two membership maps"},
		{ID: VOLSMTY, Name: "Volumetric similarity", Category: Volume, NeedsCounts: true, EmptyValue: 1,
			Help: "Volumetric similarity, 1-|FN-FP|/(2TP+FP+FN)"},
		{ID: MUTINF, Name: "Mutual information", Category: Statistical, NeedsCounts: true, EmptyValue: 0,
			Help: "Mutual information of the two segmentations"},
		{ID: HDRFDST, Name: "Hausdorff distance", Category: Distance, NeedsBoundary: true, Unit: Length,
			AcceptsParameter: true, Param: &ParamSpec{Name: "quantile", Default: 1, Min: 0, Max: 100},
			Help: "Hausdorff distance; @q@ gives the q-th quantile instead of the maximum, e.g. HDRFDST@0.95@"},
		{ID: AVGDIST, Name: "Average distance", Category: Distance, NeedsBoundary: true, Unit: Length,
			Help: "Average surface distance, mean of both directed mean distances"},
		{ID: MAHLNBS, Name: "Mahalanobis distance", Category: Distance, NeedsCounts: true, Unit: Dimensionless,
			Help: "Mahalanobis distance between the two foreground point clouds"},
		{ID: VARINFO, Name: "Variation of information", Category: Statistical, NeedsCounts: true, EmptyValue: 0,
			Help: "Variation of information"},
		{ID: GCOERR, Name: "Global consistency error", Category: Overlap, NeedsCounts: true, EmptyValue: 0,
			Help: "Global consistency error"},
		{ID: PROBDST, Name: "Probabilistic distance", Category: Probabilistic, NeedsCounts: true,
			Help: "Probabilistic distance between fuzzy segmentations"},
		{ID: SNSVTY, Name: "Sensitivity", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Sensitivity (recall, true positive rate), TP/(TP+FN)"},
		{ID: SPCFTY, Name: "Specificity", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Specificity (true negative rate), TN/(TN+FP)"},
		{ID: PRCISON, Name: "Precision", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Precision (positive predictive value), TP/(TP+FP)"},
		{ID: FMEASR, Name: "F-measure", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			AcceptsParameter: true, Param: &ParamSpec{Name: "beta", Default: 1, Min: 0, Max: 1e6},
			Help: "F-measure; @beta@ weights recall beta times as much as precision, e.g. FMEASR@0.5@"},
		{ID: ACURCY, Name: "Accuracy", Category: Overlap, NeedsCounts: true, EmptyValue: 1,
			Help: "Accuracy, (TP+TN)/N"},
		{ID: FALLOUT, Name: "Fallout", Category: Overlap, NeedsCounts: true, EmptyValue: 0,
			Help: "Fallout (false positive rate), FP/(FP+TN)"},
		{ID: REFVOL, Name: "Reference volume", Category: Volume, NeedsCounts: true, Unit: VolumeUnit,
			Help: "Volume of the ground truth foreground"},
		{ID: SEGVOL, Name: "Segmented volume", Category: Volume, NeedsCounts: true, Unit: VolumeUnit,
			Help: "Volume of the test foreground"},
		{ID: VOLDIFF, Name: "Volume difference", Category: Volume, NeedsCounts: true, Unit: VolumeUnit,
			Help: "Absolute difference between segmented and reference volume"},
		{ID: TP, Name: "True positives", Category: Statistical, NeedsCounts: true, Unit: Count, TestOnly: true,
			Help: "Number of true positive voxels"},
		{ID: FP, Name: "False positives", Category: Statistical, NeedsCounts: true, Unit: Count, TestOnly: true,
			Help: "Number of false positive voxels"},
		{ID: TN, Name: "True negatives", Category: Statistical, NeedsCounts: true, Unit: Count, TestOnly: true,
			Help: "Number of true negative voxels"},
		{ID: FN, Name: "False negatives", Category: Statistical, NeedsCounts: true, Unit: Count, TestOnly: true,
			Help: "Number of false negative voxels"},
	}
}
