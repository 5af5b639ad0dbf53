package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/throttlekeep/cli/tui"
	"github.com/justapithecus/throttlekeep/record"
)

// InspectCommand prints the current deferred set, either as a static
// listing or, with --tui, as an interactive Bubble Tea dashboard.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show the current deferred set",
		Flags:  append(ReadOnlyFlags(), TUIFlag),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	t, _, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	records, err := t.GetDeferredEvents(context.Background())
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect failed: %v", err), 1)
	}

	if c.Bool("tui") {
		return tui.RunDashboard(records)
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	return printRecords(c, records)
}

func printRecords(c *cli.Context, records []*record.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(c.App.Writer, "no deferred records")
		return nil
	}
	for _, r := range records {
		sendAt := "?"
		if r.ScheduledSendAt != nil {
			sendAt = time.UnixMilli(*r.ScheduledSendAt).Format(time.RFC3339)
		}
		fmt.Fprintf(c.App.Writer, "%-40s count=%-4d strategy=%-14s send_at=%s\n", r.Key, r.Count, r.StrategyType, sendAt)
	}
	return nil
}
