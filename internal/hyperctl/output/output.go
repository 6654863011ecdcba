// Package output centralizes how hyperctl commands talk back to the user:
// plain text by default, a JSON envelope under --json, and quiet/verbose
// toggles every command checks before printing.
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// Exit codes returned to the shell by cmd/hyperctl's main.
const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitNotFound = 4
)

var (
	flagJSON    bool
	flagQuiet   bool
	flagVerbose bool
)

// SetFlags is called from the root command's PersistentPreRunE to propagate
// the parsed global flags to every subcommand.
func SetFlags(jsonMode, quiet, verbose bool) {
	flagJSON = jsonMode
	flagQuiet = quiet
	flagVerbose = verbose
}

func IsJSON() bool    { return flagJSON }
func IsQuiet() bool   { return flagQuiet }
func IsVerbose() bool { return flagVerbose }

// PrintJSON marshals v as indented JSON to w.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintError writes a JSON error envelope to w.
func PrintError(w io.Writer, code, message string) error {
	return PrintJSON(w, map[string]string{"error": code, "message": message})
}
