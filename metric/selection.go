package metric

import (
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/segeval"
)

// ParamDelimiter opens and closes an inline parameter: HDRFDST@0.95@.
const ParamDelimiter = '@'

// Bundle keywords accepted in place of an identifier list.
const (
	BundleAll      = "all"
	BundleVisceral = "visceral"
	BundleFast     = "fast"
)

// Parameter is an inline metric parameter. The zero value means "no
// parameter given", which is distinct from an explicitly empty "@@".
type Parameter struct {
	Value string
	Set   bool
}

// Float parses the parameter, falling back to def when it was not given or
// is empty.
func (p Parameter) Float(def float64) (float64, error) {
	v := strings.TrimSpace(p.Value)
	if !p.Set || v == "" {
		return def, nil
	}

	return strconv.ParseFloat(v, 64)
}

// Averaging decides how a metric over several labels is aggregated.
type Averaging uint8

const (
	// Micro pools the per-label counts (or boundaries) before computing.
	Micro Averaging = iota
	// Macro computes the metric per label and averages the results.
	Macro
)

func (a Averaging) String() string {
	if a == Macro {
		return "macro"
	}
	return "micro"
}

// ParseAveraging accepts "micro", "macro" or "" (micro).
func ParseAveraging(s string) (Averaging, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "micro":
		return Micro, nil
	case "macro":
		return Macro, nil
	}

	return Micro, segeval.Errorf(segeval.KindMalformedParameter, "averaging", "unknown averaging %q, expected micro or macro", s)
}

type Entry struct {
	Descriptor
	Param Parameter
}

// Selection is a resolved set of metrics with their parameters. Entries are
// kept in catalog order; that order says nothing about computation order.
type Selection struct {
	entries []Entry
	index   map[ID]int

	Averaging Averaging
}

func (s Selection) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s Selection) Len() int {
	return len(s.entries)
}

func (s Selection) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

func (s Selection) Param(id ID) Parameter {
	if i, ok := s.index[id]; ok {
		return s.entries[i].Param
	}
	return Parameter{}
}

// NeedsCounts reports whether any selected metric reads confusion counts.
func (s Selection) NeedsCounts() bool {
	for _, e := range s.entries {
		if e.NeedsCounts {
			return true
		}
	}
	return false
}

// NeedsBoundary reports whether any selected metric reads boundary sets.
func (s Selection) NeedsBoundary() bool {
	for _, e := range s.entries {
		if e.NeedsBoundary {
			return true
		}
	}
	return false
}

// Resolve parses a selection expression. The expression is a bundle keyword
// (all, visceral, fast), or a comma-separated list of identifiers, each
// optionally followed by an inline parameter between two '@' characters.
// A blank expression selects "all".
func (c *Catalog) Resolve(expr string) (Selection, error) {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "", BundleAll:
		return c.bundle(func(Descriptor) bool { return true }), nil
	case BundleVisceral:
		return c.bundle(func(d Descriptor) bool { return !c.VisceralExcluded(d.ID) }), nil
	case BundleFast:
		return c.bundle(func(d Descriptor) bool { return d.Category != Distance }), nil
	}

	picked := make(map[ID]Parameter)

	for pos := 0; pos < len(expr); {
		// Identifier runs until a delimiter, a comma or the end
		end := pos
		for end < len(expr) && expr[end] != ',' && expr[end] != ParamDelimiter {
			end++
		}
		token := strings.TrimSpace(expr[pos:end])
		pos = end

		var param Parameter
		if pos < len(expr) && expr[pos] == ParamDelimiter {
			closing := strings.IndexByte(expr[pos+1:], ParamDelimiter)
			if closing < 0 {
				return Selection{}, segeval.Errorf(segeval.KindMalformedParameter, "resolve", "parameter for %q opened at offset %d is never closed", token, pos)
			}
			param = Parameter{Value: expr[pos+1 : pos+1+closing], Set: true}
			pos += closing + 2

			// Only whitespace may sit between the closing delimiter and the
			// next comma.
			for pos < len(expr) && expr[pos] == ' ' {
				pos++
			}
			if pos < len(expr) && expr[pos] != ',' {
				return Selection{}, segeval.Errorf(segeval.KindMalformedParameter, "resolve", "unexpected %q after parameter of %q", expr[pos:], token)
			}
		}

		// Skip the comma
		if pos < len(expr) {
			pos++
		}

		if token == "" {
			if param.Set {
				return Selection{}, segeval.Errorf(segeval.KindMalformedParameter, "resolve", "parameter %q has no metric identifier", param.Value)
			}
			continue
		}

		desc, ok := c.Lookup(ID(token))
		if !ok {
			return Selection{}, segeval.Errorf(segeval.KindUnknownMetric, "resolve", "%q is not a known metric", token)
		}

		if param.Set {
			if err := validateParam(desc, param); err != nil {
				return Selection{}, err
			}
		}

		if prev, seen := picked[desc.ID]; seen && prev != param {
			return Selection{}, segeval.Errorf(segeval.KindMalformedParameter, "resolve", "%s selected twice with different parameters", desc.ID)
		}
		picked[desc.ID] = param
	}

	if len(picked) == 0 {
		return Selection{}, segeval.Errorf(segeval.KindUnknownMetric, "resolve", "expression %q names no metric", expr)
	}

	entries := make([]Entry, 0, len(picked))
	for id, param := range picked {
		desc, _ := c.Lookup(id)
		entries = append(entries, Entry{Descriptor: desc, Param: param})
	}
	sort.Slice(entries, func(i, j int) bool {
		return c.Position(entries[i].ID) < c.Position(entries[j].ID)
	})

	return newSelection(entries), nil
}

func (c *Catalog) bundle(keep func(Descriptor) bool) Selection {
	entries := make([]Entry, 0, len(c.descs))
	for _, d := range c.descs {
		if d.TestOnly || !keep(d) {
			continue
		}
		entries = append(entries, Entry{Descriptor: d})
	}

	return newSelection(entries)
}

func newSelection(entries []Entry) Selection {
	s := Selection{
		entries: entries,
		index:   make(map[ID]int, len(entries)),
	}
	for i, e := range entries {
		s.index[e.ID] = i
	}

	return s
}

func validateParam(desc Descriptor, param Parameter) error {
	if !desc.AcceptsParameter {
		return segeval.Errorf(segeval.KindMalformedParameter, "resolve", "%s does not accept a parameter (got %q)", desc.ID, param.Value)
	}

	// An explicitly empty parameter means "use the default"
	if param.Value == "" {
		return nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(param.Value), 64)
	if err != nil {
		return segeval.Errorf(segeval.KindMalformedParameter, "resolve", "%s parameter %q is not a number", desc.ID, param.Value)
	}
	if spec := desc.Param; !spec.Contains(v) {
		return segeval.Errorf(segeval.KindMalformedParameter, "resolve", "%s %s %g is outside (%g, %g]", desc.ID, spec.Name, v, spec.Min, spec.Max)
	}

	return nil
}
