package overlay

import (
	"fmt"
	"image/color"
	"sort"
)

// A Label tracks the segmentation ID with the human-identifiable Label and
// human-interpretable color (in RGB hex, e.g., #FF0000 for red).
type Label struct {
	Label     string
	ID        uint   `json:"id" yaml:"id"`
	Color     string `json:"color" yaml:"color"`
	SortOrder int    `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// LabelMap ([string label name]Label) keeps track of the relationship between
// human-visible colors and the segmentation ID of that label.
type LabelMap map[string]Label

// Valid ensures that the LabelMap is valid by testing that it is bijective.
func (l LabelMap) Valid() bool {
	inverse := make(map[uint]string)
	for k, v := range l {
		inverse[v.ID] = k
	}

	return len(l) == len(inverse)
}

func (l LabelMap) Sorted() []Label {
	out := make([]Label, 0, len(l))

	for k, v := range l {
		v.Label = k
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		// If SortOrder is defined and different, use it:
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}

		// If SortOrder is not defined, or is the same for two values, drop down
		// to the ID field for sorting
		return out[i].ID < out[j].ID
	})

	return out
}

// Name returns the human-readable name of a segmentation ID, or "" if the
// map does not know it.
func (l LabelMap) Name(id uint) string {
	for k, v := range l {
		if v.ID == id {
			return k
		}
	}

	return ""
}

// ColorDecoder maps human-visible label colors back to segmentation IDs.
type ColorDecoder struct {
	palette color.Palette
	labels  []Label
	cache   map[color.Color]uint
}

// Decoder builds a ColorDecoder for the map. Because image editors can be
// imprecise, each pixel maps to the nearest label color.
func (l LabelMap) Decoder() (*ColorDecoder, error) {
	d := &ColorDecoder{cache: make(map[color.Color]uint)}

	for _, v := range l.Sorted() {
		col, err := nrgbaFromColorCode(v.Color)
		if err != nil {
			continue
		}

		// Double check that our palette colors map back to themselves
		r, g, b, _ := col.RGBA()
		cl := fmt.Sprintf("#%02x%02x%02x", uint8(r), uint8(g), uint8(b))

		// Background is special cased to be allowed to mismatch
		if cl != "#000000" && cl != v.Color {
			return nil, fmt.Errorf("Label ID %d (color %s) mapped to %s instead of its own color", v.ID, v.Color, cl)
		}

		d.palette = append(d.palette, col)
		d.labels = append(d.labels, v)
	}

	if len(d.palette) == 0 {
		return nil, fmt.Errorf("label map has no usable colors")
	}

	return d, nil
}

func (d *ColorDecoder) ID(c color.Color) uint {
	if id, exists := d.cache[c]; exists {
		return id
	}

	// Fully transparent pixels are background
	if _, _, _, a := c.RGBA(); a == 0 {
		d.cache[c] = 0
		return 0
	}

	id := d.labels[d.palette.Index(c)].ID
	d.cache[c] = id

	return id
}
