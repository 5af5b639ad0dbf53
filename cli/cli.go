package cli

import "github.com/urfave/cli/v2"

// NewApp assembles the throttlekeep CLI: track a single event, inspect or
// summarize the deferred set, and run the processing loop in the
// foreground.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "throttlekeep",
		Usage: "Event aggregation and throttling engine",
		Commands: []*cli.Command{
			TrackCommand(),
			InspectCommand(),
			StatsCommand(),
			ServeCommand(),
			ExportCommand(),
			ImportCommand(),
			VersionCommand(),
		},
	}
}
