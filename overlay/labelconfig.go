package overlay

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/carbocation/pfx"
)

// LabelConfig names the labels of a multi-label segmentation so that reports
// can show "left atrium" instead of 3.
type LabelConfig struct {
	ConfigPath string
	Labels     LabelMap `json:"labels"`
}

func ParseLabelConfigFromPath(path string) (LabelConfig, error) {
	out := LabelConfig{ConfigPath: path}

	f, err := os.Open(path)
	if err != nil {
		return out, pfx.Err(err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&out); err != nil {
		if e, ok := err.(*json.SyntaxError); ok {
			return out, pfx.Err(fmt.Errorf("syntax error at byte offset %d: %w", e.Offset, err))
		}

		return out, pfx.Err(err)
	}

	// Internally, go uses lower case for all colors, so we will too (while
	// permitting the user to use mixed case)
	for k, v := range out.Labels {
		v.Color = strings.ToLower(v.Color)
		out.Labels[k] = v
	}

	if !out.Labels.Valid() {
		return out, fmt.Errorf("%s: label IDs are not unique", path)
	}

	return out, nil
}
