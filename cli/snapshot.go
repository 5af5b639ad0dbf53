package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/throttlekeep/record"
)

// ExportCommand writes the current deferred set to a msgpack-encoded file,
// for backup or for seeding a second tracker instance.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write the deferred set to a msgpack snapshot file",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{ConfigFlag},
		Action:    exportAction,
	}
}

func exportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: throttlekeep export <path>", 1)
	}

	t, _, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	records, err := t.GetDeferredEvents(context.Background())
	if err != nil {
		return cli.Exit(fmt.Sprintf("export failed: %v", err), 1)
	}

	data, err := msgpack.Marshal(records)
	if err != nil {
		return cli.Exit(fmt.Sprintf("encoding snapshot: %v", err), 1)
	}

	if err := os.WriteFile(c.Args().Get(0), data, 0o644); err != nil {
		return cli.Exit(fmt.Sprintf("writing snapshot: %v", err), 1)
	}

	fmt.Fprintf(c.App.Writer, "wrote %d records to %s\n", len(records), c.Args().Get(0))
	return nil
}

// ImportCommand reads a msgpack snapshot and re-seeds storage with its
// records, overwriting any existing record sharing a key.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load a msgpack snapshot into storage",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{ConfigFlag},
		Action:    importAction,
	}
}

func importAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: throttlekeep import <path>", 1)
	}

	data, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading snapshot: %v", err), 1)
	}

	var records []*record.Record
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return cli.Exit(fmt.Sprintf("decoding snapshot: %v", err), 1)
	}

	t, _, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	ctx := context.Background()
	for _, r := range records {
		if err := t.ImportRecord(ctx, r); err != nil {
			return cli.Exit(fmt.Sprintf("import failed for key %s: %v", r.Key, err), 1)
		}
	}

	fmt.Fprintf(c.App.Writer, "imported %d records\n", len(records))
	return nil
}
