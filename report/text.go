package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/carbocation/segeval/engine"
	"github.com/carbocation/segeval/landmark"
	"github.com/carbocation/segeval/lesion"
)

func writeHeader(w *bufio.Writer, meta Meta) {
	if !meta.Start.IsZero() {
		fmt.Fprintf(w, "Started\t%s\n", meta.Start.Format("2006-01-02 15:04:05"))
	}
	if meta.Truth != "" {
		fmt.Fprintf(w, "Ground truth\t%s\n", meta.Truth)
	}
	if meta.Test != "" {
		fmt.Fprintf(w, "Test\t%s\n", meta.Test)
	}
	if meta.Mask != "" {
		fmt.Fprintf(w, "Mask\t%s\n", meta.Mask)
	}
	if meta.Threshold != nil {
		fmt.Fprintf(w, "Threshold\t%g\n", *meta.Threshold)
	}
}

func writeResults(w *bufio.Writer, rs engine.Results) {
	for _, r := range rs {
		if r.Err != nil {
			status := "failed"
			if r.NotApplicable() {
				status = "not applicable"
			}
			fmt.Fprintf(w, "%s\t= %s\t%s\t(%s: %v)\n", r.ID, notAvailable, r.Name, status, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t= %s\t%s\t%s\n", r.ID, formatValue(r.Value), r.Name, r.Unit)
	}
}

// WriteText prints one metric per line: identifier, value, name and unit.
// Multi-label runs add a block per label.
func WriteText(w io.Writer, meta Meta, r *engine.Report) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, meta)

	g := r.Geometry
	fmt.Fprintf(bw, "Size\t%dx%dx%d\tSpacing\t%gx%gx%g\n", g.Dims[0], g.Dims[1], g.Dims[2], g.Spacing[0], g.Spacing[1], g.Spacing[2])
	fmt.Fprintf(bw, "Mode\t%s\tUnit\t%s\tAveraging\t%s\tStreaming\t%v\n\n", r.Mode, r.Unit, r.Averaging, r.Streaming)

	writeResults(bw, r.Results)

	for _, l := range r.PerLabel {
		name := meta.labelName(l.Label)
		if name != "" {
			fmt.Fprintf(bw, "\nLabel %s (%s)\n", formatLabel(l.Label), name)
		} else {
			fmt.Fprintf(bw, "\nLabel %s\n", formatLabel(l.Label))
		}
		writeResults(bw, l.Results)
	}

	fmt.Fprintf(bw, "\nTotal execution time\t%d ms\n", r.Elapsed.Milliseconds())

	return bw.Flush()
}

func WriteLandmarkText(w io.Writer, meta Meta, r *landmark.Report) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, meta)

	fmt.Fprintln(bw)
	for _, m := range r.Matches {
		fmt.Fprintf(bw, "%s\t%s\t%s\n", m.ID, m.Status, formatValue(m.Distance))
	}

	fmt.Fprintf(bw, "\nMatched\t%d\tMissing\t%d\tExtra\t%d\n", r.Matched, r.Missing, r.Extra)
	fmt.Fprintf(bw, "Mean\t= %s\nMedian\t= %s\nMax\t= %s\nStd\t= %s\n",
		formatValue(r.Mean), formatValue(r.Median), formatValue(r.Max), formatValue(r.StdDev))

	return bw.Flush()
}

func WriteLesionText(w io.Writer, meta Meta, r *lesion.Report) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, meta)

	fmt.Fprintln(bw)
	for _, m := range r.Matches {
		fmt.Fprintf(bw, "%s\t%s\t%s\toverlap %d\tdistance %s\n", m.Status, orDash(m.TruthID), orDash(m.TestID), m.Overlap, formatValue(m.Distance))
	}

	fmt.Fprintf(bw, "\nTP\t%d\tFP\t%d\tFN\t%d\n", r.TP, r.FP, r.FN)
	if r.ExcludedTruth+r.ExcludedTest > 0 {
		fmt.Fprintf(bw, "Excluded by mask\t%d ground truth\t%d test\n", r.ExcludedTruth, r.ExcludedTest)
	}
	fmt.Fprintf(bw, "Precision\t= %s\nRecall\t= %s\nF-measure\t= %s\n",
		formatValue(r.Precision), formatValue(r.Recall), formatValue(r.FMeasure))

	return bw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
