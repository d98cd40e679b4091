package grid

import (
	"runtime"
	"sort"
	"sync"

	"github.com/carbocation/segeval"
	"github.com/rs/zerolog"
)

// DefaultTileVoxels bounds the number of voxels held per grid per tile when
// streaming (about 32 MiB of float64 values).
const DefaultTileVoxels = 1 << 22

type Options struct {
	// Threshold binarizes both grids when UseThreshold is set: values below
	// it become background, values at or above it foreground.
	Threshold    float64
	UseThreshold bool

	Unit Unit

	// Streaming reads grids in slabs of at most TileVoxels voxels. It is
	// ignored for 2D grids, which are always read as a single tile.
	Streaming  bool
	TileVoxels int

	Workers int

	Logger *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Unit:       Voxel,
		Streaming:  true,
		TileVoxels: DefaultTileVoxels,
		Workers:    runtime.NumCPU(),
	}
}

// Pair is a ground truth grid and a test grid of identical geometry, ready
// for evaluation.
type Pair struct {
	Truth *Grid
	Test  *Grid

	Unit Unit

	// Mode is the combined kind: MultiLabel if either grid is, otherwise
	// Fuzzy if either grid is, otherwise Binary.
	Mode Kind

	// Labels is the sorted union of both grids' labels.
	Labels []float64

	workers int
}

// Prepare validates and wraps two sources. Any geometry mismatch is reported
// as segeval.ErrIncompatibleGrids and must abort the whole evaluation.
func Prepare(truth, test Source, opts Options) (*Pair, error) {
	if truth == nil || test == nil {
		return nil, segeval.Errorf(segeval.KindInputLoad, "prepare", "both a ground truth and a test grid are required")
	}

	geom := truth.Geometry()
	if err := geom.Compatible(test.Geometry()); err != nil {
		return nil, &segeval.Error{Kind: segeval.KindIncompatibleGrids, Op: "prepare", Err: err}
	}
	if geom.Len() == 0 {
		return nil, segeval.Errorf(segeval.KindIncompatibleGrids, "prepare", "grids are empty (%v)", geom)
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	planes := tilePlanes(geom, opts)
	p := &Pair{Unit: opts.Unit, workers: workers}
	var err error
	if p.Truth, err = open(truth, planes, opts); err != nil {
		return nil, err
	}
	if p.Test, err = open(test, planes, opts); err != nil {
		return nil, err
	}

	if err := p.combine(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("component", "grid").
		Str("geometry", geom.String()).
		Str("mode", p.Mode.String()).
		Int("labels", len(p.Labels)).
		Int("tiles", len(p.Tiles())).
		Msg("prepared grid pair")

	return p, nil
}

// Open wraps a single source, for example a mask, classifying it the way
// Prepare does.
func Open(src Source, opts Options) (*Grid, error) {
	if src == nil {
		return nil, segeval.Errorf(segeval.KindInputLoad, "open", "no grid")
	}
	return open(src, tilePlanes(src.Geometry(), opts), opts)
}

func open(src Source, planes int, opts Options) (*Grid, error) {
	g := &Grid{src: src, tilePlanes: planes, thresholded: opts.UseThreshold, threshold: opts.Threshold}
	if opts.UseThreshold {
		g.kind, g.labels = Binary, []float64{1}
		return g, nil
	}

	kind, raw, err := classify(src, planes)
	if err != nil {
		return nil, segeval.Wrap(segeval.KindInputLoad, "classify", err)
	}
	g.kind, g.rawLabels = kind, raw
	g.labels = []float64{1}
	if kind == MultiLabel {
		g.labels = raw
	}

	return g, nil
}

// tilePlanes is the number of z-planes per tile.
func tilePlanes(geom Geometry, opts Options) int {
	if !opts.Streaming || geom.Is2D() {
		return geom.Dims[2]
	}
	tileVoxels := opts.TileVoxels
	if tileVoxels <= 0 {
		tileVoxels = DefaultTileVoxels
	}
	planes := tileVoxels / geom.PlaneLen()
	if planes < 1 {
		planes = 1
	}

	return planes
}

func (p *Pair) combine() error {
	t, s := p.Truth.kind, p.Test.kind

	switch {
	case (t == Fuzzy && s == MultiLabel) || (t == MultiLabel && s == Fuzzy):
		return segeval.Errorf(segeval.KindIncompatibleGrids, "prepare", "cannot compare a fuzzy grid with a multi-label grid")
	case t == MultiLabel || s == MultiLabel:
		p.Mode = MultiLabel
		p.Labels = unionLabels(p.Truth.rawLabels, p.Test.rawLabels)

		// A binary side of a multi-label comparison keeps its raw value as
		// its label.
		for _, g := range []*Grid{p.Truth, p.Test} {
			if g.kind == Binary {
				g.kind = MultiLabel
				g.labels = g.rawLabels
			}
		}
	case t == Fuzzy || s == Fuzzy:
		p.Mode = Fuzzy
		p.Labels = []float64{1}
	default:
		p.Mode = Binary
		p.Labels = []float64{1}
	}

	return nil
}

func unionLabels(a, b []float64) []float64 {
	seen := make(map[float64]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)

	return out
}

func (p *Pair) Geometry() Geometry {
	return p.Truth.Geometry()
}

func (p *Pair) Tiles() []Tile {
	return p.Truth.Tiles()
}

func (p *Pair) Workers() int {
	return p.workers
}

// Streaming is true when the pair is read in more than one tile.
func (p *Pair) Streaming() bool {
	return len(p.Tiles()) > 1
}

// EachTile visits every tile in increasing z order with the transformed
// values of both grids. The slices are reused between calls.
func (p *Pair) EachTile(fn func(t Tile, truth, test []float64) error) error {
	var bufTruth, bufTest []float64
	for _, t := range p.Tiles() {
		var err error
		if bufTruth, err = p.Truth.ReadTile(t, bufTruth); err != nil {
			return segeval.Wrap(segeval.KindInputLoad, "read", err)
		}
		if bufTest, err = p.Test.ReadTile(t, bufTest); err != nil {
			return segeval.Wrap(segeval.KindInputLoad, "read", err)
		}
		if err := fn(t, bufTruth, bufTest); err != nil {
			return err
		}
	}

	return nil
}

// ParallelTiles distributes tiles over the pair's workers. fn receives the
// worker index so callers can keep one accumulator per worker and reduce them
// afterwards. The first error stops the distribution of further tiles.
func (p *Pair) ParallelTiles(fn func(worker int, t Tile, truth, test []float64) error) error {
	tiles := p.Tiles()
	workers := p.workers
	if workers > len(tiles) {
		workers = len(tiles)
	}
	if workers <= 1 {
		return p.EachTile(func(t Tile, truth, test []float64) error {
			return fn(0, t, truth, test)
		})
	}

	work := make(chan Tile)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		failed   = make(chan struct{})
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			close(failed)
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var bufTruth, bufTest []float64
			for t := range work {
				var err error
				if bufTruth, err = p.Truth.ReadTile(t, bufTruth); err != nil {
					fail(segeval.Wrap(segeval.KindInputLoad, "read", err))
					continue
				}
				if bufTest, err = p.Test.ReadTile(t, bufTest); err != nil {
					fail(segeval.Wrap(segeval.KindInputLoad, "read", err))
					continue
				}
				if err := fn(worker, t, bufTruth, bufTest); err != nil {
					fail(err)
				}
			}
		}(w)
	}

Distribute:
	for _, t := range tiles {
		select {
		case work <- t:
		case <-failed:
			break Distribute
		}
	}
	close(work)
	wg.Wait()

	return firstErr
}
