// Package engine evaluates a resolved metric selection against a pair of
// grids. Shared intermediate structures (confusion statistics, boundary
// point sets and directed distances) are computed once per evaluation and
// reused by every metric that needs them.
package engine

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/confusion"
	"github.com/carbocation/segeval/distance"
	"github.com/carbocation/segeval/grid"
	"github.com/carbocation/segeval/metric"
	"github.com/rs/zerolog"
)

type Options struct {
	// Workers bounds the goroutines used for metric slots and kd-tree
	// queries. Zero means one per CPU.
	Workers int

	Logger *zerolog.Logger
}

// Engine is safe for concurrent use; each Evaluate call owns its own
// intermediate state.
type Engine struct {
	catalog *metric.Catalog
	workers int
	log     zerolog.Logger
}

func New(catalog *metric.Catalog, opts Options) *Engine {
	if catalog == nil {
		catalog = metric.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Engine{
		catalog: catalog,
		workers: workers,
		log:     log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) Catalog() *metric.Catalog {
	return e.catalog
}

// EvaluateSources prepares the pair and evaluates it. Grid incompatibility is
// reported before any metric is computed.
func (e *Engine) EvaluateSources(sel metric.Selection, truth, test grid.Source, opts grid.Options) (*Report, error) {
	if err := e.validate(sel); err != nil {
		return nil, err
	}
	pair, err := grid.Prepare(truth, test, opts)
	if err != nil {
		return nil, err
	}

	return e.Evaluate(sel, pair)
}

// Evaluate computes every selected metric. Errors that concern the whole
// run (unknown metrics, malformed parameters, unreadable tiles) are returned
// directly; a failure confined to one metric becomes that metric's Result.Err
// and the rest of the batch proceeds.
func (e *Engine) Evaluate(sel metric.Selection, pair *grid.Pair) (*Report, error) {
	started := time.Now()

	if pair == nil {
		return nil, segeval.Errorf(segeval.KindInputLoad, "evaluate", "no grid pair to evaluate")
	}
	if err := e.validate(sel); err != nil {
		return nil, err
	}

	entries := sel.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return e.catalog.Position(entries[i].ID) < e.catalog.Position(entries[j].ID)
	})

	geom := pair.Geometry()
	report := &Report{
		Geometry:  geom,
		Mode:      pair.Mode,
		Unit:      pair.Unit,
		Averaging: sel.Averaging,
		Streaming: pair.Streaming(),
		Labels:    append([]float64(nil), pair.Labels...),
	}

	var table *confusion.Table
	if sel.NeedsCounts() {
		t0 := time.Now()
		var err error
		if table, err = confusion.Compute(pair); err != nil {
			return nil, err
		}
		if err := table.Check(); err != nil {
			e.log.Warn().Err(err).Msg("confusion counts do not add up")
		}
		report.Counts = table
		e.log.Debug().Dur("took", time.Since(t0)).Int("labels", len(table.Labels)).Msg("computed confusion statistics")
	}

	var bounds *boundarySet
	if sel.NeedsBoundary() {
		t0 := time.Now()
		var err error
		if bounds, err = e.extractBoundaries(pair); err != nil {
			return nil, err
		}
		e.log.Debug().
			Dur("took", time.Since(t0)).
			Int("truth_points", bounds.pooled.Truth.Len()).
			Int("test_points", bounds.pooled.Test.Len()).
			Msg("extracted boundaries")
	}

	multi := pair.Mode == grid.MultiLabel && len(pair.Labels) > 1

	// One slot per (metric, label) plus one per aggregated metric.
	type slot struct {
		entry metric.Entry
		in    inputs
		out   *Result
	}
	var slots []slot

	voxelVolume := geom.VoxelVolume(pair.Unit)
	newResult := func(en metric.Entry) Result {
		return Result{ID: en.ID, Name: describe(en), Category: en.Category, Unit: unitLabel(en.Unit, geom, pair.Unit)}
	}

	if multi {
		report.PerLabel = make([]LabelResults, len(pair.Labels))
		for li, label := range pair.Labels {
			report.PerLabel[li] = LabelResults{Label: label, Results: make(Results, len(entries))}
			in := inputs{voxelVolume: voxelVolume}
			if table != nil {
				stats := table.Labels[li]
				in.stats = &stats
			}
			if bounds != nil {
				in.boundaries = bounds.byLabel[label]
			}
			for i, en := range entries {
				report.PerLabel[li].Results[i] = newResult(en)
				slots = append(slots, slot{entry: en, in: in, out: &report.PerLabel[li].Results[i]})
			}
		}
	}

	report.Results = make(Results, len(entries))
	micro := inputs{voxelVolume: voxelVolume}
	if table != nil {
		stats := table.Micro()
		micro.stats = &stats
	}
	if bounds != nil {
		micro.boundaries = bounds.pooled
	}
	macro := multi && sel.Averaging == metric.Macro
	for i, en := range entries {
		report.Results[i] = newResult(en)
		if macro && !pooledOnly(en) {
			// filled in from the per-label results below
			continue
		}
		slots = append(slots, slot{entry: en, in: micro, out: &report.Results[i]})
	}

	work := make(chan slot)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				s.out.Value, s.out.Err = compute(s.entry, s.in)
			}
		}()
	}
	for _, s := range slots {
		work <- s
	}
	close(work)
	wg.Wait()

	if macro {
		for i, en := range entries {
			if pooledOnly(en) {
				continue
			}
			report.Results[i].Value, report.Results[i].Err = macroAverage(report.PerLabel, i)
		}
	}

	for _, r := range report.Results {
		if r.Err != nil {
			ev := e.log.Debug()
			if segeval.IsFatal(r.Err) {
				ev = e.log.Warn()
			}
			ev.Str("metric", string(r.ID)).Err(r.Err).Msg("metric failed")
		}
	}

	report.Elapsed = time.Since(started)
	e.log.Debug().Dur("took", report.Elapsed).Int("metrics", len(entries)).Msg("evaluation finished")

	return report, nil
}

// pooledOnly metrics are extensive quantities (volumes and counts) that are
// summed over labels rather than averaged.
func pooledOnly(en metric.Entry) bool {
	return en.Unit == metric.VolumeUnit || en.Unit == metric.Count
}

func macroAverage(perLabel []LabelResults, i int) (float64, error) {
	sum, n := 0.0, 0
	for _, lr := range perLabel {
		r := lr.Results[i]
		if segeval.IsFatal(r.Err) {
			return 0, r.Err
		}
		if r.Err != nil {
			continue
		}
		sum += r.Value
		n++
	}
	if n == 0 {
		return 0, segeval.Errorf(segeval.KindNotApplicable, "macro", "metric applies to none of %d labels", len(perLabel))
	}

	return sum / float64(n), nil
}

// validate rejects selections that cannot be computed by this engine before
// any work starts.
func (e *Engine) validate(sel metric.Selection) error {
	if sel.Len() == 0 {
		return segeval.Errorf(segeval.KindUnknownMetric, "evaluate", "no metric selected")
	}
	for _, en := range sel.Entries() {
		if e.catalog.Position(en.ID) < 0 {
			return segeval.Errorf(segeval.KindUnknownMetric, "evaluate", "%q is not in this engine's catalog", en.ID)
		}
		if !en.Param.Set || en.Descriptor.Param == nil {
			continue
		}
		v, err := en.Param.Float(en.Descriptor.Param.Default)
		if err != nil {
			return segeval.Wrap(segeval.KindMalformedParameter, string(en.ID), err)
		}
		if spec := en.Descriptor.Param; !spec.Contains(v) {
			return segeval.Errorf(segeval.KindMalformedParameter, string(en.ID), "%s %g is outside (%g, %g]", spec.Name, v, spec.Min, spec.Max)
		}
	}

	return nil
}

type boundarySet struct {
	pooled  *distance.Pair
	byLabel map[float64]*distance.Pair
}

// extractBoundaries reads both grids concurrently, once each.
func (e *Engine) extractBoundaries(pair *grid.Pair) (*boundarySet, error) {
	type extracted struct {
		pooled  distance.BoundarySet
		byLabel map[float64]distance.BoundarySet
		err     error
	}

	multi := pair.Mode == grid.MultiLabel
	extract := func(g *grid.Grid) (out extracted) {
		if multi {
			out.pooled, out.byLabel, out.err = distance.ExtractLabelBoundaries(g, pair.Unit, pair.Labels)
			return
		}
		out.pooled, out.err = distance.ExtractBoundary(g, pair.Unit, distance.Foreground)
		return
	}

	var truth, test extracted
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		truth = extract(pair.Truth)
	}()
	go func() {
		defer wg.Done()
		test = extract(pair.Test)
	}()
	wg.Wait()

	for _, x := range []extracted{truth, test} {
		if x.err != nil {
			return nil, segeval.Wrap(segeval.KindInputLoad, "boundary", x.err)
		}
	}

	out := &boundarySet{
		pooled:  distance.NewPair(truth.pooled, test.pooled, e.workers),
		byLabel: make(map[float64]*distance.Pair, len(pair.Labels)),
	}
	for _, l := range pair.Labels {
		if multi {
			out.byLabel[l] = distance.NewPair(truth.byLabel[l], test.byLabel[l], e.workers)
		} else {
			out.byLabel[l] = out.pooled
		}
	}

	return out, nil
}
