package compileinfo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestString(t *testing.T) {
	c := CompileInfo{Package: "segeval", Version: "v1.0.0", GoVersion: "go1.18", Commit: "abc", Modified: true}
	s := c.String()
	for _, want := range []string{"segeval", "v1.0.0", "go1.18", "abc", "modified"} {
		if !strings.Contains(s, want) {
			t.Fatalf("%q does not mention %q", s, want)
		}
	}
	if (CompileInfo{}).Known() {
		t.Fatalf("empty info should not be known")
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	Log(zerolog.New(&buf).Level(zerolog.DebugLevel))
	if !strings.Contains(buf.String(), `"message":"build"`) {
		t.Fatalf("unexpected log output %s", buf.String())
	}
}
