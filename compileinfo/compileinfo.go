// Package compileinfo reports which build of segeval produced a result, so
// that scores written to disk can be traced back to a commit.
package compileinfo

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

type CompileInfo struct {
	Package    string
	Version    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	return fmt.Sprintf("This %s binary (version %s) was built with %s at commit %v at time %v.%s", c.Package, c.Version, c.GoVersion, c.Commit, c.CommitTime, mod)
}

// Known reports whether any build information was embedded.
func (c CompileInfo) Known() bool {
	return c.GoVersion != ""
}

func Get() CompileInfo {
	out := CompileInfo{}

	z, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = z.GoVersion
	out.Package = z.Path
	out.Version = z.Main.Version
	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

// Log writes the build information as a single debug event.
func Log(log zerolog.Logger) {
	c := Get()
	log.Debug().
		Str("package", c.Package).
		Str("version", c.Version).
		Str("go", c.GoVersion).
		Str("commit", c.Commit).
		Str("commit_time", c.CommitTime).
		Bool("modified", c.Modified).
		Msg("build")
}
