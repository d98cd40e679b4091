package grid

import (
	"fmt"
	"math"
	"sort"
)

// Kind is what the values in a grid mean.
type Kind uint8

const (
	// Binary grids hold at most one distinct nonzero value; every nonzero
	// voxel is foreground.
	Binary Kind = iota
	// Fuzzy grids hold membership degrees, clamped to [0, 1].
	Fuzzy
	// MultiLabel grids hold two or more distinct nonzero integer labels.
	MultiLabel
)

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Fuzzy:
		return "fuzzy"
	case MultiLabel:
		return "multi-label"
	}
	return "unknown"
}

// MaxLabels bounds the number of distinct labels a grid may carry before it
// is rejected as "not a label map". Intensity images must be thresholded.
const MaxLabels = 1024

// Tile is a slab of whole z-planes [Z0, Z1).
type Tile struct {
	Z0, Z1 int
}

func (t Tile) Planes() int {
	return t.Z1 - t.Z0
}

// Grid is a read-only view over a Source that applies binarization on read.
// The Source itself is never modified.
type Grid struct {
	src Source

	kind   Kind
	labels []float64

	// distinct nonzero integer values seen while classifying
	rawLabels []float64

	thresholded bool
	threshold   float64

	tilePlanes int
}

func (g *Grid) Source() Source {
	return g.src
}

func (g *Grid) Geometry() Geometry {
	return g.src.Geometry()
}

func (g *Grid) Kind() Kind {
	return g.kind
}

// Labels returns the distinct nonzero values of the grid, sorted. Binary
// grids report the single label 1.
func (g *Grid) Labels() []float64 {
	out := make([]float64, len(g.labels))
	copy(out, g.labels)
	return out
}

// Value maps a raw source value to the value seen by metrics.
func (g *Grid) Value(raw float64) float64 {
	switch {
	case g.thresholded:
		// NaN compares false against everything; map it to background
		// explicitly so thresholding stays total.
		if math.IsNaN(raw) || raw < g.threshold {
			return 0
		}
		return 1
	case math.IsNaN(raw):
		return 0
	case g.kind == Fuzzy:
		return math.Max(0, math.Min(1, raw))
	case g.kind == Binary:
		if raw != 0 {
			return 1
		}
		return 0
	}

	return raw
}

// Membership is the degree to which a transformed value is foreground, with
// all labels of a multi-label grid pooled together.
func Membership(v float64) float64 {
	if v == 0 {
		return 0
	}
	if v > 0 && v < 1 {
		return v
	}
	return 1
}

// Tiles lists the slabs the grid is read in, in increasing z order.
func (g *Grid) Tiles() []Tile {
	return tilesFor(g.Geometry().Dims[2], g.tilePlanes)
}

func tilesFor(depth, planes int) []Tile {
	if planes <= 0 || planes > depth {
		planes = depth
	}
	out := make([]Tile, 0, (depth+planes-1)/planes)
	for z := 0; z < depth; z += planes {
		end := z + planes
		if end > depth {
			end = depth
		}
		out = append(out, Tile{Z0: z, Z1: end})
	}

	return out
}

// ReadTile reads a tile's transformed values into buf, growing it if needed,
// and returns the filled slice.
func (g *Grid) ReadTile(t Tile, buf []float64) ([]float64, error) {
	return g.readPlanes(t.Z0, t.Z1, buf)
}

func (g *Grid) readPlanes(z0, z1 int, buf []float64) ([]float64, error) {
	n := (z1 - z0) * g.Geometry().PlaneLen()
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	buf = buf[:n]

	if err := g.src.ReadPlanes(z0, z1, buf); err != nil {
		return nil, err
	}
	for i, v := range buf {
		buf[i] = g.Value(v)
	}

	return buf, nil
}

// EachTileHalo visits each tile with one extra plane on either side (where
// the grid has one), so that 6-neighbourhoods can be evaluated at tile edges.
// values covers planes [lo, hi).
func (g *Grid) EachTileHalo(fn func(t Tile, lo, hi int, values []float64) error) error {
	depth := g.Geometry().Dims[2]
	var buf []float64
	for _, t := range g.Tiles() {
		lo, hi := t.Z0-1, t.Z1+1
		if lo < 0 {
			lo = 0
		}
		if hi > depth {
			hi = depth
		}

		var err error
		buf, err = g.readPlanes(lo, hi, buf)
		if err != nil {
			return err
		}
		if err := fn(t, lo, hi, buf); err != nil {
			return err
		}
	}

	return nil
}

// classify scans the source once to decide whether it is binary, fuzzy or
// multi-label.
func classify(src Source, planes int) (kind Kind, raw []float64, err error) {
	geom := src.Geometry()
	seen := make(map[float64]struct{})
	fuzzy := false

	var buf []float64
	for _, t := range tilesFor(geom.Dims[2], planes) {
		n := t.Planes() * geom.PlaneLen()
		if cap(buf) < n {
			buf = make([]float64, n)
		}
		buf = buf[:n]
		if err := src.ReadPlanes(t.Z0, t.Z1, buf); err != nil {
			return Binary, nil, err
		}

		for _, v := range buf {
			if v == 0 || math.IsNaN(v) {
				continue
			}
			if v != math.Trunc(v) {
				fuzzy = true
				continue
			}
			if _, exists := seen[v]; exists {
				continue
			}
			if len(seen) >= MaxLabels {
				return Binary, nil, fmt.Errorf("more than %d distinct values; threshold intensity images before evaluating", MaxLabels)
			}
			seen[v] = struct{}{}
		}
	}

	raw = make([]float64, 0, len(seen))
	for v := range seen {
		raw = append(raw, v)
	}
	sort.Float64s(raw)

	switch {
	case fuzzy:
		return Fuzzy, raw, nil
	case len(raw) <= 1:
		return Binary, raw, nil
	}

	return MultiLabel, raw, nil
}
