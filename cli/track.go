package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

// TrackCommand tracks a single event against the configured strategy and
// prints the resulting outcome. Intended for scripting and manual testing
// against a running backend.
func TrackCommand() *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Track a single event and print the resulting outcome",
		ArgsUsage: "<category> <id>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "details",
				Usage: "JSON-encoded details payload fingerprinted for the freshness check",
			},
		),
		Action: trackAction,
	}
}

func trackAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: throttlekeep track <category> <id>", 1)
	}
	category, id := c.Args().Get(0), c.Args().Get(1)

	var details any
	if raw := c.String("details"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --details JSON: %v", err), 1)
		}
	}

	t, _, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	res, err := t.TrackEvent(context.Background(), category, id, details)
	if err != nil {
		return cli.Exit(fmt.Sprintf("track failed: %v", err), 1)
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(c.App.Writer, "outcome: %s\n", res.Type)
	if res.Record != nil {
		fmt.Fprintf(c.App.Writer, "count: %d\n", res.Record.Count)
		fmt.Fprintf(c.App.Writer, "deferred: %t\n", res.Record.Deferred)
	}
	if res.Ignored != nil {
		fmt.Fprintf(c.App.Writer, "reason: %s\n", res.Ignored.Reason)
	}
	return nil
}
