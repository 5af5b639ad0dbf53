package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/throttlekeep/cli/tui"
)

// statsSnapshot summarizes the deferred set at a point in time. Unlike
// inspect, it never lists individual records.
type statsSnapshot struct {
	DeferredCount int            `json:"deferredCount"`
	ByStrategy    map[string]int `json:"byStrategy"`
}

// StatsCommand prints aggregate counters for the deferred set.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate deferred-set statistics",
		Flags:  append(ReadOnlyFlags(), TUIFlag),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	t, _, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	records, err := t.GetDeferredEvents(context.Background())
	if err != nil {
		return cli.Exit(fmt.Sprintf("stats failed: %v", err), 1)
	}

	snap := statsSnapshot{DeferredCount: len(records), ByStrategy: map[string]int{}}
	for _, r := range records {
		snap.ByStrategy[r.StrategyType]++
	}

	if c.Bool("tui") {
		return tui.RunDashboard(records)
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintf(c.App.Writer, "deferred: %d\n", snap.DeferredCount)
	for strat, n := range snap.ByStrategy {
		fmt.Fprintf(c.App.Writer, "  %-16s %d\n", strat, n)
	}
	return nil
}
