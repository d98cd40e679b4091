package engine

import (
	"errors"
	"time"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/confusion"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/metric"
)

// Result is the outcome of one metric. Exactly one of Value and Err is
// meaningful: a failed metric carries Err and a zero Value.
type Result struct {
	ID       metric.ID
	Name     string
	Category metric.Category
	Value    float64
	Unit     string
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// NotApplicable reports whether the metric is undefined for these inputs,
// e.g. a distance between empty boundaries.
func (r Result) NotApplicable() bool {
	return errors.Is(r.Err, segeval.ErrNotApplicable)
}

// Results are kept in catalog canonical order.
type Results []Result

func (rs Results) Get(id metric.ID) (Result, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}
	return Result{}, false
}

// LabelResults holds the metrics computed for a single label of a
// multi-label pair.
type LabelResults struct {
	Label   float64
	Results Results
}

// Report is everything one evaluation produced.
type Report struct {
	Geometry  grid.Geometry
	Mode      grid.Kind
	Unit      grid.Unit
	Averaging metric.Averaging
	Streaming bool
	Labels    []float64

	Results  Results
	PerLabel []LabelResults

	// Counts is nil when no selected metric needed confusion statistics.
	Counts *confusion.Table

	Elapsed time.Duration
}

func (r *Report) Result(id metric.ID) (Result, bool) {
	return r.Results.Get(id)
}
