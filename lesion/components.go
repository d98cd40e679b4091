package lesion

import (
	"math"
	"strconv"

	"github.com/carbocation/segeval/grid"
	"github.com/theodesp/unionfind"
)

// FromGrid extracts one lesion per 6-connected foreground component (4 in
// 2D), each carrying the grid's geometry. Lesions are numbered from 1 in the raster order of their first voxel;
// Center is the centroid and Radius the radius of the sphere (circle in 2D)
// of equal volume, both in the given unit.
func FromGrid(g *grid.Grid, unit grid.Unit) ([]Lesion, error) {
	geom := g.Geometry()
	nx, plane := geom.Dims[0], geom.PlaneLen()

	// Raster-order two-pass labelling: provisional labels from the already
	// visited -x, -y and -z neighbours, equivalences resolved with
	// union-find afterwards.
	labels := make([]int32, geom.Len())
	var equivalences [][2]int32
	next := int32(1)

	var buf []float64
	for _, t := range g.Tiles() {
		var err error
		if buf, err = g.ReadTile(t, buf); err != nil {
			return nil, err
		}

		offset := t.Z0 * plane
		for k, v := range buf {
			if grid.Membership(v) < 0.5 {
				continue
			}
			i := offset + k
			x, y, z := geom.Coord(i)

			label := int32(0)
			join := func(neighbour int32) {
				switch {
				case neighbour == 0:
				case label == 0:
					label = neighbour
				case neighbour != label:
					equivalences = append(equivalences, [2]int32{label, neighbour})
				}
			}
			if x > 0 {
				join(labels[i-1])
			}
			if y > 0 {
				join(labels[i-nx])
			}
			if z > 0 {
				join(labels[i-plane])
			}

			if label == 0 {
				label = next
				next++
			}
			labels[i] = label
		}
	}

	uf := unionfind.New(int(next))
	for _, e := range equivalences {
		uf.Union(int(e[0]), int(e[1]))
	}

	scale := geom.Scale(unit)
	voxelVolume := geom.VoxelVolume(unit)

	byRoot := make(map[int]int)
	var out []Lesion
	var sums [][3]float64
	for i, l := range labels {
		if l == 0 {
			continue
		}
		root := uf.Root(int(l))
		k, seen := byRoot[root]
		if !seen {
			k = len(out)
			byRoot[root] = k
			out = append(out, Lesion{ID: strconv.Itoa(k + 1), Geometry: &geom})
			sums = append(sums, [3]float64{})
		}
		x, y, z := geom.Coord(i)
		sums[k][0] += float64(x) * scale[0]
		sums[k][1] += float64(y) * scale[1]
		sums[k][2] += float64(z) * scale[2]
		out[k].Voxels = append(out[k].Voxels, i)
	}

	for k := range out {
		n := float64(len(out[k].Voxels))
		for d := 0; d < 3; d++ {
			out[k].Center[d] = sums[k][d] / n
		}
		volume := n * voxelVolume
		if geom.Is2D() {
			out[k].Radius = math.Sqrt(volume / math.Pi)
		} else {
			out[k].Radius = math.Cbrt(3 * volume / (4 * math.Pi))
		}
	}

	return out, nil
}
