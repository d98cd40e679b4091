package landmark

import (
	"errors"
	"math"
	"testing"

	"github.com/carbocation/segeval"
)

func TestMatchedByIdentifier(t *testing.T) {
	truth := []Landmark{
		{ID: "A", Position: [3]float64{0, 0, 0}},
		{ID: "B", Position: [3]float64{10, 0, 0}},
	}
	test := []Landmark{
		{ID: "B", Position: [3]float64{10, 1, 0}},
		{ID: "A", Position: [3]float64{1, 0, 0}},
	}

	r, err := Evaluate(truth, test)
	if err != nil {
		t.Fatal(err)
	}
	if r.Matched != 2 || r.Missing != 0 || r.Extra != 0 {
		t.Fatalf("matched %d, missing %d, extra %d", r.Matched, r.Missing, r.Extra)
	}
	for _, m := range r.Matches {
		if m.Distance != 1 {
			t.Fatalf("%s: distance %v, expected 1", m.ID, m.Distance)
		}
	}
	if r.Mean != 1 || r.Median != 1 || r.Max != 1 || r.StdDev != 0 {
		t.Fatalf("unexpected aggregates %+v", r)
	}
}

func TestUnmatched(t *testing.T) {
	truth := []Landmark{
		{ID: "A", Position: [3]float64{0, 0, 0}},
		{ID: "B", Position: [3]float64{0, 0, 0}},
		{ID: "C", Position: [3]float64{0, 0, 0}},
	}
	test := []Landmark{
		{ID: "A", Position: [3]float64{3, 4, 0}},
		{ID: "C", Position: [3]float64{0, 0, 1}},
		{ID: "D", Position: [3]float64{5, 5, 5}},
	}

	r, err := Evaluate(truth, test)
	if err != nil {
		t.Fatal(err)
	}
	if r.Matched != 2 || r.Missing != 1 || r.Extra != 1 {
		t.Fatalf("matched %d, missing %d, extra %d", r.Matched, r.Missing, r.Extra)
	}

	expected := []struct {
		id     string
		status Status
	}{
		{"A", Matched},
		{"B", Missing},
		{"C", Matched},
		{"D", FalsePositive},
	}
	for i, v := range expected {
		m := r.Matches[i]
		if m.ID != v.id || m.Status != v.status {
			t.Fatalf("match %d: %s %v, expected %s %v", i, m.ID, m.Status, v.id, v.status)
		}
		if (m.Status == Matched) == math.IsNaN(m.Distance) {
			t.Fatalf("match %d: distance %v with status %v", i, m.Distance, m.Status)
		}
	}

	if r.Mean != 3 || r.Median != 3 || r.Max != 5 {
		t.Fatalf("unexpected aggregates %+v", r)
	}
	if r.StdDev <= 0 || r.StdDev > math.Sqrt(8)+1e-9 {
		t.Fatalf("std dev %v out of range", r.StdDev)
	}
}

func TestNothingMatched(t *testing.T) {
	r, err := Evaluate([]Landmark{{ID: "A"}}, []Landmark{{ID: "B"}})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(r.Mean) || !math.IsNaN(r.Max) {
		t.Fatalf("aggregates should be undefined, got %+v", r)
	}
}

func TestDuplicateIdentifiers(t *testing.T) {
	dup := []Landmark{{ID: "A"}, {ID: "A"}}
	for _, v := range []struct {
		truth, test []Landmark
	}{
		{dup, nil},
		{nil, dup},
	} {
		if _, err := Evaluate(v.truth, v.test); !errors.Is(err, segeval.ErrInputLoad) {
			t.Fatalf("expected an input error, got %v", err)
		}
	}
}
