// Package report renders evaluation results as console text or as an XML
// document.
package report

import (
	"math"
	"strconv"
	"time"

	"github.com/carbocation/segeval/compileinfo"
	"github.com/carbocation/segeval/overlay"
)

// Meta describes a run: its inputs and when it started. It is written
// alongside every report.
type Meta struct {
	Truth string
	Test  string
	Mask  string

	// Selection is the metric expression as the user gave it.
	Selection string

	// Threshold is nil when inputs were not thresholded.
	Threshold *float64

	Start time.Time
	End   time.Time

	Build compileinfo.CompileInfo

	// Labels names the labels of multi-label inputs. Optional.
	Labels overlay.LabelMap
}

func (m Meta) elapsed() time.Duration {
	if m.End.IsZero() || m.Start.IsZero() {
		return 0
	}
	return m.End.Sub(m.Start)
}

// labelName is the configured name of a label, or "" if there is none.
func (m Meta) labelName(label float64) string {
	if m.Labels == nil || label < 0 || label != math.Trunc(label) {
		return ""
	}
	return m.Labels.Name(uint(label))
}

// notAvailable stands in for the value of a metric that failed or does not
// apply, so it cannot be mistaken for a computed NaN.
const notAvailable = "N/A"

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatLabel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
