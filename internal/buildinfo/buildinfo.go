// Package buildinfo carries build-time metadata injected by the linker,
// kept separate from user configuration.
package buildinfo

import "fmt"

// Set at build time via -ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

// Context is a snapshot of the build metadata.
type Context struct {
	Version   string
	BuildDate string
}

// Get returns the build metadata for this binary.
func Get() Context {
	return Context{
		Version:   version,
		BuildDate: buildDate,
	}
}

// String formats the metadata for the version command.
func (c Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.Version, c.BuildDate)
}
