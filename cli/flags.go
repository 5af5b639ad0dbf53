// Package cli wires the throttlekeep tracker engine into a urfave/cli/v2
// command surface: tracking a single event, inspecting and serving the
// deferred set, and a background daemon mode.
package cli

import "github.com/urfave/cli/v2"

// ConfigFlag points at the YAML config file every command loads before
// constructing a tracker.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to throttlekeep config file",
	Value:   "throttlekeep.yaml",
}

// FormatFlag selects plain-text vs JSON output for read-only commands.
var FormatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Usage:   "Output format: text, json",
	Value:   "text",
}

// TUIFlag enables the Bubble Tea interactive dashboard for inspect and
// stats.
var TUIFlag = &cli.BoolFlag{
	Name:  "tui",
	Usage: "Enable interactive TUI mode (inspect and stats)",
}

// ReadOnlyFlags returns the flags shared by every read-only command.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, FormatFlag}
}
