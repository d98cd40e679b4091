// Package grid adapts a pair of label or intensity volumes for evaluation:
// geometry checks, thresholding, unit handling and tiled (streaming) access.
package grid

import (
	"fmt"
	"math"
	"strings"
)

// Unit selects whether distances and volumes are reported in voxels or in
// physical millimeters.
type Unit uint8

const (
	Voxel Unit = iota
	Millimeter
)

func (u Unit) String() string {
	if u == Millimeter {
		return "millimeter"
	}
	return "voxel"
}

func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "voxel", "voxels":
		return Voxel, nil
	case "millimeter", "millimeters", "mm":
		return Millimeter, nil
	}

	return Voxel, fmt.Errorf("unknown unit %q, expected voxel or millimeter", s)
}

// Geometry is the shape of a grid: voxel counts along x, y, z and the
// physical size of a voxel along each axis. 2D grids have Dims[2] == 1.
type Geometry struct {
	Dims    [3]int
	Spacing [3]float64
}

// NewGeometry fills in unit spacing for any non-positive spacing entry.
func NewGeometry(nx, ny, nz int, spacing ...float64) Geometry {
	g := Geometry{Dims: [3]int{nx, ny, nz}, Spacing: [3]float64{1, 1, 1}}
	for i := 0; i < len(spacing) && i < 3; i++ {
		if spacing[i] > 0 {
			g.Spacing[i] = spacing[i]
		}
	}

	return g
}

func (g Geometry) Len() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// PlaneLen is the number of voxels in one z-plane.
func (g Geometry) PlaneLen() int {
	return g.Dims[0] * g.Dims[1]
}

func (g Geometry) Is2D() bool {
	return g.Dims[2] <= 1
}

func (g Geometry) Index(x, y, z int) int {
	return (z*g.Dims[1]+y)*g.Dims[0] + x
}

// Coord inverts Index.
func (g Geometry) Coord(i int) (x, y, z int) {
	plane := g.PlaneLen()
	z = i / plane
	i -= z * plane
	y = i / g.Dims[0]
	x = i - y*g.Dims[0]
	return
}

func (g Geometry) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Dims[0] && y < g.Dims[1] && z < g.Dims[2]
}

// Scale is the distance represented by one voxel step along each axis.
func (g Geometry) Scale(u Unit) [3]float64 {
	if u == Millimeter {
		return g.Spacing
	}
	return [3]float64{1, 1, 1}
}

// VoxelVolume is the volume of one voxel in the given unit. In 2D the
// in-plane area is used.
func (g Geometry) VoxelVolume(u Unit) float64 {
	if u != Millimeter {
		return 1
	}
	if g.Is2D() {
		return g.Spacing[0] * g.Spacing[1]
	}

	return g.Spacing[0] * g.Spacing[1] * g.Spacing[2]
}

// Compatible reports whether two geometries can be evaluated against each
// other. Spacing is compared with a small relative tolerance because it is
// usually stored as float32 on disk.
func (g Geometry) Compatible(o Geometry) error {
	if g.Dims != o.Dims {
		return fmt.Errorf("dimensions differ: %v vs %v", g.Dims, o.Dims)
	}
	for i := range g.Spacing {
		a, b := g.Spacing[i], o.Spacing[i]
		if math.Abs(a-b) > 1e-5*math.Max(math.Abs(a), math.Abs(b)) {
			return fmt.Errorf("spacing differs: %v vs %v", g.Spacing, o.Spacing)
		}
	}

	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d @ %gx%gx%g", g.Dims[0], g.Dims[1], g.Dims[2], g.Spacing[0], g.Spacing[1], g.Spacing[2])
}
