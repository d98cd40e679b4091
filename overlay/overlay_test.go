package overlay

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestLabeledPixelToID(t *testing.T) {
	for _, v := range []struct {
		c      color.Color
		id     uint32
		errors bool
	}{
		{color.NRGBA{1, 1, 1, 255}, 1, false},
		{color.NRGBA{7, 7, 7, 255}, 7, false},
		{color.NRGBA{0, 0, 0, 0}, 0, false},
		{color.NRGBA{1, 2, 1, 255}, 0, true},
	} {
		id, err := LabeledPixelToID(v.c)
		if (err != nil) != v.errors {
			t.Fatalf("%v: unexpected error state %v", v.c, err)
		}
		if !v.errors && id != v.id {
			t.Fatalf("%v: got %d, expected %d", v.c, id, v.id)
		}
	}
}

func testLabels() LabelMap {
	return LabelMap{
		"background": {ID: 0, Color: "#000000"},
		"red":        {ID: 3, Color: "#ff0000", SortOrder: 1},
		"green":      {ID: 5, Color: "#00ff00", SortOrder: 2},
	}
}

func TestLabelMap(t *testing.T) {
	l := testLabels()
	if !l.Valid() {
		t.Fatalf("expected valid label map")
	}
	if l.Name(5) != "green" || l.Name(9) != "" {
		t.Fatalf("unexpected names %q, %q", l.Name(5), l.Name(9))
	}

	sorted := l.Sorted()
	if sorted[0].Label != "background" || sorted[2].Label != "green" {
		t.Fatalf("unexpected order %+v", sorted)
	}

	l["duplicate"] = Label{ID: 3, Color: "#0000ff"}
	if l.Valid() {
		t.Fatalf("expected duplicate IDs to be invalid")
	}
}

func TestImageToVolume(t *testing.T) {
	t.Run("gray labels", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
		img.Set(1, 0, color.NRGBA{2, 2, 2, 255})
		img.Set(2, 1, color.NRGBA{1, 1, 1, 255})

		vol, err := ImageToVolume(img, nil, [2]float64{0.5, 2})
		if err != nil {
			t.Fatal(err)
		}
		geom := vol.Geometry()
		if geom.Dims != [3]int{3, 2, 1} || geom.Spacing != [3]float64{0.5, 2, 1} {
			t.Fatalf("unexpected geometry %v", geom)
		}
		if vol.At(1, 0, 0) != 2 || vol.At(2, 1, 0) != 1 || vol.At(0, 0, 0) != 0 {
			t.Fatalf("unexpected values %v", vol.Data)
		}
	})

	t.Run("palette", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		img.Set(0, 0, color.NRGBA{250, 3, 0, 255})
		img.Set(1, 1, color.NRGBA{0, 255, 0, 255})

		vol, err := ImageToVolume(img, testLabels(), [2]float64{})
		if err != nil {
			t.Fatal(err)
		}
		if vol.At(0, 0, 0) != 3 || vol.At(1, 1, 0) != 5 || vol.At(1, 0, 0) != 0 {
			t.Fatalf("unexpected values %v", vol.Data)
		}
	})

	t.Run("gray16", func(t *testing.T) {
		img := image.NewGray16(image.Rect(0, 0, 2, 1))
		img.SetGray16(1, 0, color.Gray16{Y: 1000})

		vol, err := ImageToVolume(img, nil, [2]float64{})
		if err != nil {
			t.Fatal(err)
		}
		if vol.At(1, 0, 0) != 1000 {
			t.Fatalf("got %v, expected 1000", vol.At(1, 0, 0))
		}
	})
}

func TestImageRoundTripThroughFile(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.NRGBA{1, 1, 1, 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "seg.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	decoded, err := OpenImage(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	vol, err := ImageToVolume(decoded, nil, [2]float64{})
	if err != nil {
		t.Fatal(err)
	}
	if vol.At(2, 2, 0) != 1 {
		t.Fatalf("got %v, expected 1", vol.At(2, 2, 0))
	}
}

func TestParseLabelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")
	body := `{"labels": {"background": {"id": 0, "color": ""}, "LV": {"id": 1, "color": "#FF0000"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseLabelConfigFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Labels["LV"].Color != "#ff0000" {
		t.Fatalf("expected lower-cased color, got %q", cfg.Labels["LV"].Color)
	}
}
