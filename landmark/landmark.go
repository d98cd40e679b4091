// Package landmark compares two sets of identified points. Points are paired
// by identifier, never by proximity.
package landmark

import (
	"math"

	"github.com/carbocation/runningvariance"
	"github.com/carbocation/segeval"
	"github.com/montanaflynn/stats"
)

// Landmark is a named point in physical coordinates.
type Landmark struct {
	ID       string
	Position [3]float64
}

type Status uint8

const (
	Matched Status = iota
	// Missing marks a ground truth landmark with no test counterpart.
	Missing
	// FalsePositive marks a test landmark with no ground truth counterpart.
	FalsePositive
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Missing:
		return "missing"
	case FalsePositive:
		return "false positive"
	}
	return "unknown"
}

// Match pairs a ground truth landmark with the test landmark of the same
// identifier. Distance is NaN unless Status is Matched.
type Match struct {
	ID       string
	Status   Status
	Truth    [3]float64
	Test     [3]float64
	Distance float64
}

type Report struct {
	// Matches lists ground truth landmarks in input order, followed by the
	// unmatched test landmarks in input order.
	Matches []Match

	Matched, Missing, Extra int

	// Aggregates over matched distances. They are NaN when nothing matched.
	Mean, Median, Max, StdDev float64
}

func index(set []Landmark, which string) (map[string]int, error) {
	out := make(map[string]int, len(set))
	for i, l := range set {
		if _, exists := out[l.ID]; exists {
			return nil, segeval.Errorf(segeval.KindInputLoad, "landmarks", "%s landmark %q appears more than once", which, l.ID)
		}
		out[l.ID] = i
	}
	return out, nil
}

func Evaluate(truth, test []Landmark) (*Report, error) {
	if _, err := index(truth, "ground truth"); err != nil {
		return nil, err
	}
	byID, err := index(test, "test")
	if err != nil {
		return nil, err
	}

	report := &Report{Matches: make([]Match, 0, len(truth)+len(test))}
	used := make([]bool, len(test))
	distances := make([]float64, 0, len(truth))
	rs := runningvariance.NewRunningStat()

	for _, gt := range truth {
		j, ok := byID[gt.ID]
		if !ok {
			report.Missing++
			report.Matches = append(report.Matches, Match{ID: gt.ID, Status: Missing, Truth: gt.Position, Distance: math.NaN()})
			continue
		}
		used[j] = true

		d := euclidean(gt.Position, test[j].Position)
		distances = append(distances, d)
		rs.Push(d)
		report.Matched++
		report.Matches = append(report.Matches, Match{ID: gt.ID, Status: Matched, Truth: gt.Position, Test: test[j].Position, Distance: d})
	}

	for j, l := range test {
		if used[j] {
			continue
		}
		report.Extra++
		report.Matches = append(report.Matches, Match{ID: l.ID, Status: FalsePositive, Test: l.Position, Distance: math.NaN()})
	}

	report.Mean, report.Median, report.Max, report.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	if len(distances) == 0 {
		return report, nil
	}

	data := stats.LoadRawData(distances)
	if report.Mean, err = stats.Mean(data); err != nil {
		return nil, err
	}
	if report.Median, err = stats.Median(data); err != nil {
		return nil, err
	}
	if report.Max, err = stats.Max(data); err != nil {
		return nil, err
	}
	report.StdDev = 0
	if len(distances) > 1 {
		report.StdDev = rs.StandardDeviation()
	}

	return report, nil
}

func euclidean(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
