package segeval

import (
	"bytes"
	"strings"

	"github.com/csimplestring/go-csv/detector"
)

// plausibleDelimiters filters out characters that happen to occur equally
// often on every line, such as the decimal point of coordinate columns.
const plausibleDelimiters = ",\t;| "

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in a CSV-like sample, falling back to a comma.
func DetermineDelimiter(sample []byte) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(sample), '"')

	for _, v := range delimiters {
		if len(v) > 0 && strings.ContainsRune(plausibleDelimiters, rune(v[0])) {
			return rune(v[0])
		}
	}

	// The detector needs several lines to agree; fall back to the most common
	// candidate on the first line.
	first := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		first = sample[:i]
	}
	best, bestN := ',', 0
	for _, r := range plausibleDelimiters {
		if n := bytes.Count(first, []byte(string(r))); n > bestN {
			best, bestN = r, n
		}
	}

	return best
}
