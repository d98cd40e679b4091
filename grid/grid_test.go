package grid

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/carbocation/segeval"
)

func filled(geom Geometry, values ...float64) *Volume {
	v := NewVolume(geom)
	for i := range v.Data {
		v.Data[i] = values[i%len(values)]
	}
	return v
}

func TestPrepareRejectsMismatchedGeometry(t *testing.T) {
	for _, v := range []struct {
		a, b Geometry
	}{
		{NewGeometry(4, 4, 4), NewGeometry(4, 4, 5)},
		{NewGeometry(4, 4, 4, 1, 1, 1), NewGeometry(4, 4, 4, 1, 1, 2)},
		{NewGeometry(8, 8, 1), NewGeometry(8, 4, 1)},
	} {
		_, err := Prepare(NewVolume(v.a), NewVolume(v.b), DefaultOptions())
		if !errors.Is(err, segeval.ErrIncompatibleGrids) {
			t.Fatalf("%v vs %v: expected incompatible grids, got %v", v.a, v.b, err)
		}
	}
}

func TestSpacingTolerance(t *testing.T) {
	a := NewGeometry(2, 2, 2, 0.7, 0.7, 1.2)
	b := NewGeometry(2, 2, 2, float64(float32(0.7)), 0.7, 1.2)
	if err := a.Compatible(b); err != nil {
		t.Fatalf("float32 rounding of spacing should be tolerated: %v", err)
	}
}

func TestThresholdIsIdempotent(t *testing.T) {
	g := &Grid{thresholded: true, threshold: 0.5}
	for _, v := range []struct {
		raw, expected float64
	}{
		{0, 0},
		{0.2, 0},
		{0.5, 1},
		{0.7, 1},
		{250, 1},
		{-3, 0},
		{math.NaN(), 0},
	} {
		once := g.Value(v.raw)
		if once != v.expected {
			t.Fatalf("Value(%v) = %v, expected %v", v.raw, once, v.expected)
		}
		if twice := g.Value(once); twice != once {
			t.Fatalf("Value(Value(%v)) = %v, expected %v", v.raw, twice, once)
		}
	}
}

func TestClassify(t *testing.T) {
	geom := NewGeometry(3, 3, 3)
	for _, v := range []struct {
		name   string
		values []float64
		kind   Kind
		labels []float64
	}{
		{"binary", []float64{0, 255}, Binary, []float64{1}},
		{"empty", []float64{0}, Binary, []float64{1}},
		{"fuzzy", []float64{0, 0.25, 1}, Fuzzy, []float64{1}},
		{"multi", []float64{0, 1, 2, 0, 7}, MultiLabel, []float64{1, 2, 7}},
	} {
		p, err := Prepare(filled(geom, v.values...), filled(geom, 0), DefaultOptions())
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		if p.Truth.Kind() != v.kind {
			t.Fatalf("%s: kind %v, expected %v", v.name, p.Truth.Kind(), v.kind)
		}
		labels := p.Truth.Labels()
		if len(labels) != len(v.labels) {
			t.Fatalf("%s: labels %v, expected %v", v.name, labels, v.labels)
		}
		for i := range labels {
			if labels[i] != v.labels[i] {
				t.Fatalf("%s: labels %v, expected %v", v.name, labels, v.labels)
			}
		}
	}
}

func TestTooManyLabels(t *testing.T) {
	geom := NewGeometry(MaxLabels+2, 1, 1)
	v := NewVolume(geom)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	_, err := Prepare(v, NewVolume(geom), DefaultOptions())
	if !errors.Is(err, segeval.ErrInputLoad) {
		t.Fatalf("expected an input load error, got %v", err)
	}
}

func TestFuzzyAgainstMultiLabel(t *testing.T) {
	geom := NewGeometry(4, 4, 1)
	_, err := Prepare(filled(geom, 0, 0.5), filled(geom, 0, 1, 2), DefaultOptions())
	if !errors.Is(err, segeval.ErrIncompatibleGrids) {
		t.Fatalf("expected incompatible grids, got %v", err)
	}
}

func TestBinaryAgainstMultiLabel(t *testing.T) {
	geom := NewGeometry(4, 4, 1)
	p, err := Prepare(filled(geom, 0, 1, 2), filled(geom, 0, 2), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != MultiLabel {
		t.Fatalf("mode %v, expected multi-label", p.Mode)
	}
	if len(p.Labels) != 2 || p.Labels[0] != 1 || p.Labels[1] != 2 {
		t.Fatalf("labels %v, expected [1 2]", p.Labels)
	}
	if got := p.Test.Value(2); got != 2 {
		t.Fatalf("binary side should keep its label, got %v", got)
	}
}

func TestTiles(t *testing.T) {
	geom := NewGeometry(4, 4, 10)
	opts := DefaultOptions()
	opts.TileVoxels = 3 * geom.PlaneLen()

	p, err := Prepare(NewVolume(geom), NewVolume(geom), opts)
	if err != nil {
		t.Fatal(err)
	}

	expected := []Tile{{0, 3}, {3, 6}, {6, 9}, {9, 10}}
	tiles := p.Tiles()
	if len(tiles) != len(expected) {
		t.Fatalf("tiles %v, expected %v", tiles, expected)
	}
	for i := range tiles {
		if tiles[i] != expected[i] {
			t.Fatalf("tiles %v, expected %v", tiles, expected)
		}
	}
	if !p.Streaming() {
		t.Fatalf("expected a streamed pair")
	}

	opts.Streaming = false
	p, err = Prepare(NewVolume(geom), NewVolume(geom), opts)
	if err != nil {
		t.Fatal(err)
	}
	if p.Streaming() {
		t.Fatalf("expected a single tile, got %v", p.Tiles())
	}
}

func TestParallelTilesVisitsEveryVoxel(t *testing.T) {
	geom := NewGeometry(5, 3, 17)
	truth := NewVolume(geom)
	for i := range truth.Data {
		truth.Data[i] = float64(i % 3)
	}
	test := filled(geom, 1)

	opts := DefaultOptions()
	opts.TileVoxels = 2 * geom.PlaneLen()
	opts.Workers = 4
	p, err := Prepare(truth, test, opts)
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		sum    float64
		voxels int
	)
	err = p.ParallelTiles(func(worker int, tile Tile, a, b []float64) error {
		s := 0.0
		for i := range a {
			s += a[i] * b[i]
		}
		mu.Lock()
		sum += s
		voxels += len(a)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := 0.0
	for _, v := range truth.Data {
		expected += v
	}
	if voxels != geom.Len() || sum != expected {
		t.Fatalf("visited %d voxels summing to %v, expected %d and %v", voxels, sum, geom.Len(), expected)
	}
}

func TestParallelTilesStopsOnError(t *testing.T) {
	geom := NewGeometry(2, 2, 20)
	opts := DefaultOptions()
	opts.TileVoxels = geom.PlaneLen()
	opts.Workers = 3
	p, err := Prepare(NewVolume(geom), NewVolume(geom), opts)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = p.ParallelTiles(func(worker int, tile Tile, a, b []float64) error {
		if tile.Z0 == 5 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the worker error, got %v", err)
	}
}

func TestEachTileHalo(t *testing.T) {
	geom := NewGeometry(2, 2, 6)
	opts := DefaultOptions()
	opts.TileVoxels = 2 * geom.PlaneLen()
	p, err := Prepare(NewVolume(geom), NewVolume(geom), opts)
	if err != nil {
		t.Fatal(err)
	}

	var got [][2]int
	err = p.Truth.EachTileHalo(func(tile Tile, lo, hi int, values []float64) error {
		if len(values) != (hi-lo)*geom.PlaneLen() {
			t.Fatalf("tile %v: %d values for planes [%d, %d)", tile, len(values), lo, hi)
		}
		got = append(got, [2]int{lo, hi})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := [][2]int{{0, 3}, {1, 5}, {3, 6}}
	if len(got) != len(expected) {
		t.Fatalf("halos %v, expected %v", got, expected)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("halos %v, expected %v", got, expected)
		}
	}
}
