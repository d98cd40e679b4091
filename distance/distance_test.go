package distance

import (
	"errors"
	"math"
	"testing"

	"github.com/carbocation/segeval"
	"github.com/carbocation/segeval/grid"
)

func cubes(t *testing.T, geom grid.Geometry, a, b [2][3]int, opts grid.Options) *grid.Pair {
	t.Helper()
	truth := grid.NewVolume(geom)
	truth.FillBox(a[0], a[1], 1)
	test := grid.NewVolume(geom)
	test.FillBox(b[0], b[1], 1)

	p, err := grid.Prepare(truth, test, opts)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func boundaries(t *testing.T, p *grid.Pair) (BoundarySet, BoundarySet) {
	t.Helper()
	a, err := ExtractBoundary(p.Truth, p.Unit, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ExtractBoundary(p.Test, p.Unit, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a, b
}

func TestBoundarySize(t *testing.T) {
	for _, v := range []struct {
		name     string
		geom     grid.Geometry
		box      [2][3]int
		expected int
	}{
		{"cube", grid.NewGeometry(5, 5, 5), [2][3]int{{1, 1, 1}, {4, 4, 4}}, 26},
		{"square", grid.NewGeometry(5, 5, 1), [2][3]int{{1, 1, 0}, {4, 4, 1}}, 8},
		{"full", grid.NewGeometry(4, 4, 4), [2][3]int{{0, 0, 0}, {4, 4, 4}}, 0},
		{"empty", grid.NewGeometry(4, 4, 4), [2][3]int{}, 0},
	} {
		p := cubes(t, v.geom, v.box, v.box, grid.DefaultOptions())
		a, _ := boundaries(t, p)
		if a.Len() != v.expected {
			t.Fatalf("%s: %d boundary points, expected %d", v.name, a.Len(), v.expected)
		}
	}
}

func TestIdenticalRegions(t *testing.T) {
	box := [2][3]int{{2, 2, 2}, {7, 6, 5}}
	a, b := boundaries(t, cubes(t, grid.NewGeometry(10, 10, 10), box, box, grid.DefaultOptions()))

	h, err := SymmetricHausdorff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	avg, err := AverageDistance(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h != 0 || avg != 0 {
		t.Fatalf("identical regions: hausdorff %v, average %v", h, avg)
	}
}

func TestShiftedCube(t *testing.T) {
	geom := grid.NewGeometry(10, 10, 10, 1, 1, 2)
	a := [2][3]int{{2, 2, 2}, {6, 6, 6}}
	b := [2][3]int{{3, 2, 2}, {7, 6, 6}}
	c := [2][3]int{{2, 2, 3}, {6, 6, 7}}

	for _, v := range []struct {
		name     string
		b        [2][3]int
		unit     grid.Unit
		expected float64
	}{
		{"x voxels", b, grid.Voxel, 1},
		{"x millimeters", b, grid.Millimeter, 1},
		{"z voxels", c, grid.Voxel, 1},
		{"z millimeters", c, grid.Millimeter, 2},
	} {
		opts := grid.DefaultOptions()
		opts.Unit = v.unit
		ba, bb := boundaries(t, cubes(t, geom, a, v.b, opts))

		h, err := SymmetricHausdorff(ba, bb)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(h-v.expected) > 1e-12 {
			t.Fatalf("%s: hausdorff %v, expected %v", v.name, h, v.expected)
		}

		avg, err := AverageDistance(ba, bb)
		if err != nil {
			t.Fatal(err)
		}
		if avg <= 0 || avg > h {
			t.Fatalf("%s: average %v should be in (0, %v]", v.name, avg, h)
		}
	}
}

func TestPercentile(t *testing.T) {
	a := BoundarySet{Points: nil}
	b := BoundarySet{}
	for i := 0; i < 100; i++ {
		a.Points = append(a.Points, point(i, 0, 0, [3]float64{1, 1, 1}))
		b.Points = append(b.Points, point(i, 0, 0, [3]float64{1, 1, 1}))
	}
	// One outlier ten units away from everything else.
	a.Points = append(a.Points, point(50, 10, 0, [3]float64{1, 1, 1}))

	h, err := SymmetricHausdorff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h != 10 {
		t.Fatalf("hausdorff %v, expected 10", h)
	}

	for _, q := range []float64{0.95, 95} {
		p, err := Percentile(a, b, q)
		if err != nil {
			t.Fatal(err)
		}
		if p != 0 {
			t.Fatalf("percentile %v: %v, expected the outlier to be ignored", q, p)
		}
	}

	for _, q := range []float64{0, -1, 100.5, math.NaN()} {
		if _, err := NormalizeQuantile(q); !errors.Is(err, segeval.ErrMalformedParameter) {
			t.Fatalf("quantile %v: expected a malformed parameter error, got %v", q, err)
		}
	}
}

func TestEmptyBoundaryNotApplicable(t *testing.T) {
	geom := grid.NewGeometry(6, 6, 6)
	for _, box := range [][2][3]int{
		{},
		{{0, 0, 0}, {6, 6, 6}},
	} {
		a, b := boundaries(t, cubes(t, geom, [2][3]int{{1, 1, 1}, {3, 3, 3}}, box, grid.DefaultOptions()))
		if _, err := SymmetricHausdorff(a, b); !errors.Is(err, segeval.ErrNotApplicable) {
			t.Fatalf("box %v: expected not applicable, got %v", box, err)
		}
		if _, err := AverageDistance(a, b); !errors.Is(err, segeval.ErrNotApplicable) {
			t.Fatalf("box %v: expected not applicable, got %v", box, err)
		}
	}
}

func TestStreamedBoundaryMatches(t *testing.T) {
	geom := grid.NewGeometry(12, 9, 15)
	box := [2][3]int{{2, 1, 3}, {10, 8, 13}}

	whole := grid.DefaultOptions()
	whole.Streaming = false
	streamed := grid.DefaultOptions()
	streamed.TileVoxels = 2 * geom.PlaneLen()

	a1, _ := boundaries(t, cubes(t, geom, box, box, whole))
	a2, _ := boundaries(t, cubes(t, geom, box, box, streamed))
	if a1.Len() != a2.Len() {
		t.Fatalf("streamed boundary has %d points, in-memory %d", a2.Len(), a1.Len())
	}
	for i := range a1.Points {
		for d := range a1.Points[i] {
			if a1.Points[i][d] != a2.Points[i][d] {
				t.Fatalf("point %d differs: %v vs %v", i, a1.Points[i], a2.Points[i])
			}
		}
	}
}

func TestLabelBoundaries(t *testing.T) {
	geom := grid.NewGeometry(6, 3, 1)
	v := grid.NewVolume(geom)
	v.FillBox([3]int{0, 0, 0}, [3]int{3, 3, 1}, 1)
	v.FillBox([3]int{3, 0, 0}, [3]int{6, 3, 1}, 2)
	p, err := grid.Prepare(v, v, grid.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	pooled, byLabel, err := ExtractLabelBoundaries(p.Truth, p.Unit, p.Labels)
	if err != nil {
		t.Fatal(err)
	}
	if !pooled.Empty() {
		t.Fatalf("a fully labelled grid has no background, got %d pooled points", pooled.Len())
	}
	if byLabel[1].Len() != 3 || byLabel[2].Len() != 3 {
		t.Fatalf("expected the shared edge on both labels, got %d and %d", byLabel[1].Len(), byLabel[2].Len())
	}
}
