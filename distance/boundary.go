// Package distance extracts boundary point sets from grids and derives
// Hausdorff-type distances between them using a k-d tree for nearest
// neighbour queries.
package distance

import (
	"github.com/carbocation/segeval/grid"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// BoundarySet holds the physical coordinates of the surface voxels of a
// region. It is built once per grid and shared by every distance metric.
type BoundarySet struct {
	Points kdtree.Points
}

func (b BoundarySet) Len() int {
	return len(b.Points)
}

func (b BoundarySet) Empty() bool {
	return len(b.Points) == 0
}

// Foreground is the default membership test: a voxel is foreground when its
// membership is at least one half.
func Foreground(v float64) bool {
	return grid.Membership(v) >= 0.5
}

// ExtractBoundary collects the foreground voxels that have at least one
// background voxel among their 6 face neighbours (4 in 2D). Neighbours
// outside the grid do not count as background, so a grid that is entirely
// foreground has an empty boundary.
func ExtractBoundary(g *grid.Grid, unit grid.Unit, member func(float64) bool) (BoundarySet, error) {
	if member == nil {
		member = Foreground
	}
	scale := g.Geometry().Scale(unit)

	var out BoundarySet
	err := walk(g, func(x, y, z int, v float64, neighbours []float64) {
		if !member(v) {
			return
		}
		for _, n := range neighbours {
			if !member(n) {
				out.Points = append(out.Points, point(x, y, z, scale))
				return
			}
		}
	})

	return out, err
}

// ExtractLabelBoundaries makes one pass over a multi-label grid and returns
// the boundary of the union of all labels along with the boundary of each
// label. A voxel is on the boundary of its label when any face neighbour
// carries a different value.
func ExtractLabelBoundaries(g *grid.Grid, unit grid.Unit, labels []float64) (BoundarySet, map[float64]BoundarySet, error) {
	scale := g.Geometry().Scale(unit)

	var pooled BoundarySet
	byLabel := make(map[float64]BoundarySet, len(labels))
	for _, l := range labels {
		byLabel[l] = BoundarySet{}
	}

	err := walk(g, func(x, y, z int, v float64, neighbours []float64) {
		background, different := false, false
		for _, n := range neighbours {
			if n == 0 {
				background = true
			}
			if n != v {
				different = true
			}
		}
		if !different {
			return
		}

		p := point(x, y, z, scale)
		if background {
			pooled.Points = append(pooled.Points, p)
		}
		b := byLabel[v]
		b.Points = append(b.Points, p)
		byLabel[v] = b
	})

	return pooled, byLabel, err
}

func point(x, y, z int, scale [3]float64) kdtree.Point {
	return kdtree.Point{float64(x) * scale[0], float64(y) * scale[1], float64(z) * scale[2]}
}

// walk visits every nonzero voxel in z order with the values of its face
// neighbours that lie inside the grid. Tiles are read with a one-plane halo
// so neighbours across tile edges are seen.
func walk(g *grid.Grid, visit func(x, y, z int, v float64, neighbours []float64)) error {
	geom := g.Geometry()
	nx, ny, nz := geom.Dims[0], geom.Dims[1], geom.Dims[2]
	plane := geom.PlaneLen()

	var nb [6]float64

	return g.EachTileHalo(func(t grid.Tile, lo, hi int, values []float64) error {
		for z := t.Z0; z < t.Z1; z++ {
			base := (z - lo) * plane
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					i := base + y*nx + x
					v := values[i]
					if v == 0 {
						continue
					}

					n := 0
					if x > 0 {
						nb[n] = values[i-1]
						n++
					}
					if x < nx-1 {
						nb[n] = values[i+1]
						n++
					}
					if y > 0 {
						nb[n] = values[i-nx]
						n++
					}
					if y < ny-1 {
						nb[n] = values[i+nx]
						n++
					}
					if z > 0 {
						nb[n] = values[i-plane]
						n++
					}
					if z < nz-1 {
						nb[n] = values[i+plane]
						n++
					}

					visit(x, y, z, v, nb[:n])
				}
			}
		}
		return nil
	})
}
