// Package deps verifies that the external tools the agent drives are available.
package deps

import (
	"database/sql"
	"errors"
	"fmt"
	"os/exec"
	"slices"
)

// Names of the required dependencies.
const (
	Tcpdump = "tcpdump"
	Nmap    = "nmap"
	SQLite  = "sqlite"
)

// MissingError reports a required dependency that could not be found.
type MissingError struct {
	Name string
	Hint string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required dependency %q not found: %s", e.Name, e.Hint)
}

func (e *MissingError) Unwrap() error { return e.Err }

// Result is the outcome of checking one dependency.
type Result struct {
	Name string
	Path string
	Err  error
}

// Guard checks executables on PATH and registered database drivers.
type Guard struct {
	LookPath func(file string) (string, error)
	Drivers  func() []string
}

func New() *Guard {
	return &Guard{
		LookPath: exec.LookPath,
		Drivers:  sql.Drivers,
	}
}

var hints = map[string]string{
	Tcpdump: "install tcpdump (e.g. apt-get install tcpdump) and make sure it is on PATH",
	Nmap:    "install nmap (e.g. apt-get install nmap) and make sure it is on PATH",
	SQLite:  "the binary was built without the sqlite database driver; rebuild netwatch",
}

// Check verifies every dependency. The returned error joins one
// *MissingError per missing dependency.
func (g *Guard) Check() ([]Result, error) {
	var results []Result
	var errs []error

	for _, tool := range []string{Tcpdump, Nmap} {
		path, err := g.LookPath(tool)
		if err != nil {
			err = &MissingError{Name: tool, Hint: hints[tool], Err: err}
			errs = append(errs, err)
		}
		results = append(results, Result{Name: tool, Path: path, Err: err})
	}

	r := Result{Name: SQLite, Path: "database/sql driver"}
	if !slices.Contains(g.Drivers(), SQLite) {
		r.Err = &MissingError{Name: SQLite, Hint: hints[SQLite]}
		errs = append(errs, r.Err)
	}
	results = append(results, r)

	return results, errors.Join(errs...)
}

// Path returns the resolved path of name from results, or name itself.
func Path(results []Result, name string) string {
	for _, r := range results {
		if r.Name == name && r.Path != "" {
			return r.Path
		}
	}
	return name
}
