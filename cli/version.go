package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

// Version is the throttlekeep release version, set at build time via
// -ldflags the same way across every component (lockstep versioning).
var Version = "dev"

type versionResponse struct {
	Version string `json:"version"`
}

// VersionCommand reports the binary's version. It never contacts storage.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  []cli.Flag{FormatFlag},
		Action: versionAction,
	}
}

func versionAction(c *cli.Context) error {
	resp := versionResponse{Version: Version}
	if c.String("format") == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(c.App.Writer, resp.Version)
	return nil
}
