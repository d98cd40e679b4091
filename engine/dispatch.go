package engine

import (
	"fmt"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/confusion"
	"github.com/carbocation/segeval/distance"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/metric"
)

// inputs are the shared intermediate structures one metric slot reads from.
// Either may be missing when no selected metric needs it.
type inputs struct {
	stats       *confusion.LabelStats
	voxelVolume float64
	boundaries  *distance.Pair
}

func (in inputs) counts(id metric.ID) (confusion.Counts, error) {
	if in.stats == nil {
		return confusion.Counts{}, segeval.Errorf(segeval.KindUnknown, string(id), "confusion statistics were not computed")
	}
	return in.stats.Counts, nil
}

// compute evaluates one metric. A panic inside a metric is turned into that
// metric's failure so that the rest of the batch can proceed.
func compute(e metric.Entry, in inputs) (value float64, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = segeval.Errorf(segeval.KindUnknown, string(e.ID), "%v", panicErr)
		}
	}()

	if e.NeedsBoundary {
		return computeDistance(e, in)
	}

	c, err := in.counts(e.ID)
	if err != nil {
		return 0, err
	}

	switch e.ID {
	case metric.DICE:
		return confusion.Dice(c), nil
	case metric.JACRD:
		return confusion.Jaccard(c), nil
	case metric.AUC:
		return confusion.AUC(c), nil
	case metric.KAPPA:
		return confusion.Kappa(c), nil
	case metric.RNDIND:
		return confusion.RandIndex(c)
	case metric.ADJRIND:
		return confusion.AdjustedRandIndex(c)
	case metric.ICCORR:
		return confusion.InterclassCorrelation(in.stats.Sums)
	case metric.VOLSMTY:
		return confusion.VolumetricSimilarity(c), nil
	case metric.MUTINF:
		return confusion.MutualInformation(c), nil
	case metric.MAHLNBS:
		return confusion.Mahalanobis(in.stats.Truth, in.stats.Test)
	case metric.VARINFO:
		return confusion.VariationOfInformation(c), nil
	case metric.GCOERR:
		return confusion.GlobalConsistencyError(c), nil
	case metric.PROBDST:
		return confusion.ProbabilisticDistance(in.stats.Sums)
	case metric.SNSVTY:
		return confusion.Sensitivity(c), nil
	case metric.SPCFTY:
		return confusion.Specificity(c), nil
	case metric.PRCISON:
		return confusion.Precision(c), nil
	case metric.FMEASR:
		beta, err := e.Param.Float(defaultParam(e.Descriptor, 1))
		if err != nil {
			return 0, segeval.Wrap(segeval.KindMalformedParameter, string(e.ID), err)
		}
		return confusion.FMeasure(c, beta), nil
	case metric.ACURCY:
		return confusion.Accuracy(c), nil
	case metric.FALLOUT:
		return confusion.Fallout(c), nil
	case metric.REFVOL:
		return confusion.ReferenceVolume(c, in.voxelVolume), nil
	case metric.SEGVOL:
		return confusion.SegmentedVolume(c, in.voxelVolume), nil
	case metric.VOLDIFF:
		return confusion.VolumeDifference(c, in.voxelVolume), nil
	case metric.TP:
		return c.TP, nil
	case metric.FP:
		return c.FP, nil
	case metric.TN:
		return c.TN, nil
	case metric.FN:
		return c.FN, nil
	}

	return 0, segeval.Errorf(segeval.KindUnknownMetric, string(e.ID), "no implementation for metric %q", e.ID)
}

func computeDistance(e metric.Entry, in inputs) (float64, error) {
	if in.boundaries == nil {
		return 0, segeval.Errorf(segeval.KindUnknown, string(e.ID), "boundaries were not extracted")
	}

	switch e.ID {
	case metric.HDRFDST:
		q, err := e.Param.Float(defaultParam(e.Descriptor, 1))
		if err != nil {
			return 0, segeval.Wrap(segeval.KindMalformedParameter, string(e.ID), err)
		}
		if q, err = distance.NormalizeQuantile(q); err != nil {
			return 0, err
		}
		return in.boundaries.Percentile(q)
	case metric.AVGDIST:
		return in.boundaries.Average()
	}

	return 0, segeval.Errorf(segeval.KindUnknownMetric, string(e.ID), "no implementation for metric %q", e.ID)
}

func defaultParam(d metric.Descriptor, fallback float64) float64 {
	if d.Param != nil {
		return d.Param.Default
	}
	return fallback
}

// unitLabel names the unit a metric value is reported in.
func unitLabel(u metric.Unit, geom grid.Geometry, unit grid.Unit) string {
	switch u {
	case metric.Length:
		if unit == grid.Millimeter {
			return "mm"
		}
		return "voxel"
	case metric.VolumeUnit:
		switch {
		case unit != grid.Millimeter:
			return "voxel"
		case geom.Is2D():
			return "mm^2"
		}
		return "mm^3"
	case metric.Count:
		return "voxel"
	}

	return ""
}

func describe(e metric.Entry) string {
	if e.Param.Set && e.Param.Value != "" && e.Descriptor.Param != nil {
		return fmt.Sprintf("%s (%s=%s)", e.Name, e.Descriptor.Param.Name, e.Param.Value)
	}
	return e.Name
}
