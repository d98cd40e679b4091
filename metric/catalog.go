// Package metric describes every supported evaluation metric and resolves
// user selection expressions such as "DICE,HDRFDST@0.95@" against that
// catalog.
package metric

import (
	"fmt"
	"sort"
)

// ID is the short code that names a metric on the command line and in reports.
type ID string

type Category uint8

const (
	Overlap Category = iota
	Statistical
	Distance
	Probabilistic
	Volume
)

func (c Category) String() string {
	switch c {
	case Overlap:
		return "overlap"
	case Statistical:
		return "statistical"
	case Distance:
		return "distance"
	case Probabilistic:
		return "probabilistic"
	case Volume:
		return "volume"
	}

	return "unknown"
}

// Unit describes what a metric's value measures. Length and Volume metrics
// are reported in voxels or millimeters depending on the evaluation unit.
type Unit uint8

const (
	Dimensionless Unit = iota
	Length
	VolumeUnit
	Count
)

// ParamSpec describes the numeric inline parameter a metric accepts. Min is
// exclusive, Max inclusive.
type ParamSpec struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
}

// Contains reports whether v is in (Min, Max]. NaN is never contained.
func (p ParamSpec) Contains(v float64) bool {
	return v > p.Min && v <= p.Max
}

// Descriptor is the immutable description of one metric.
type Descriptor struct {
	ID       ID
	Name     string
	Category Category
	Help     string
	Unit     Unit

	// AcceptsParameter is true when the metric reads an inline @param@.
	AcceptsParameter bool
	Param            *ParamSpec

	// TestOnly metrics are never part of the "all", "visceral" or "fast"
	// bundles and must be named explicitly.
	TestOnly bool

	// EmptyValue is returned when every denominator term is zero, e.g. Dice
	// of two empty segmentations.
	EmptyValue float64

	// NeedsCounts / NeedsBoundary tell the engine which shared intermediate
	// structures the metric reads.
	NeedsCounts   bool
	NeedsBoundary bool
}

// Catalog is the read-only set of known metrics, in canonical order. A Catalog
// is safe for concurrent use once constructed.
type Catalog struct {
	descs    []Descriptor
	position map[ID]int

	// sorted identifiers for whole-token binary search
	sorted []ID

	visceralExcluded map[ID]struct{}
}

type CatalogOption func(*Catalog) error

// WithVisceralExclusions replaces the list of metrics left out of the
// "visceral" bundle.
func WithVisceralExclusions(ids ...ID) CatalogOption {
	return func(c *Catalog) error {
		c.visceralExcluded = make(map[ID]struct{}, len(ids))
		for _, id := range ids {
			if _, exists := c.position[id]; !exists {
				return fmt.Errorf("visceral exclusion %q is not a known metric", id)
			}
			c.visceralExcluded[id] = struct{}{}
		}
		return nil
	}
}

// NewCatalog builds a catalog whose canonical order is the order of descs.
// Identifiers must be unique and non-empty.
func NewCatalog(descs []Descriptor, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		descs:            make([]Descriptor, len(descs)),
		position:         make(map[ID]int, len(descs)),
		sorted:           make([]ID, 0, len(descs)),
		visceralExcluded: make(map[ID]struct{}),
	}
	copy(c.descs, descs)

	for i, d := range c.descs {
		if d.ID == "" {
			return nil, fmt.Errorf("descriptor #%d has an empty identifier", i)
		}
		if _, exists := c.position[d.ID]; exists {
			return nil, fmt.Errorf("duplicate metric identifier %q", d.ID)
		}
		if d.AcceptsParameter != (d.Param != nil) {
			return nil, fmt.Errorf("metric %q: AcceptsParameter and Param must agree", d.ID)
		}
		c.position[d.ID] = i
		c.sorted = append(c.sorted, d.ID)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i] < c.sorted[j] })

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Lookup finds a descriptor by exact identifier.
func (c *Catalog) Lookup(id ID) (Descriptor, bool) {
	// Binary search over whole identifiers: "FP" never matches "FPR" or
	// "XFP", only "FP".
	i := sort.Search(len(c.sorted), func(i int) bool { return c.sorted[i] >= id })
	if i < len(c.sorted) && c.sorted[i] == id {
		return c.descs[c.position[id]], true
	}

	return Descriptor{}, false
}

// Position is the canonical index of id, or -1.
func (c *Catalog) Position(id ID) int {
	if p, ok := c.position[id]; ok {
		return p
	}

	return -1
}

// All returns every descriptor in canonical order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.descs))
	copy(out, c.descs)
	return out
}

// VisceralExcluded reports whether id is left out of the "visceral" bundle.
func (c *Catalog) VisceralExcluded(id ID) bool {
	_, excluded := c.visceralExcluded[id]
	return excluded
}
