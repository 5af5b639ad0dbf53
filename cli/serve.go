package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/throttlekeep/config"
	"github.com/justapithecus/throttlekeep/record"
)

// ServeCommand starts the tracker's processing loop in the foreground: due
// deferred events are logged as they are popped, and (if metrics are
// enabled) a Prometheus endpoint is served until SIGINT/SIGTERM.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the tracker's deferred-event processing loop",
		Flags:  append(ReadOnlyFlags(), &cli.StringFlag{Name: "metrics-addr", Usage: "Override the config file's metrics.addr"}),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	t, collector, err := buildTracker(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer t.Destroy()

	t.SetProcessor(func(events []*record.Record) error {
		for _, r := range events {
			fmt.Fprintf(c.App.Writer, "processed key=%s count=%d\n", r.Key, r.Count)
		}
		return nil
	})

	var srv *http.Server
	if collector != nil {
		addr := c.String("metrics-addr")
		if addr == "" {
			if cfg, err := config.Load(c.String("config")); err == nil {
				addr = cfg.Metrics.Addr
			}
		}
		if addr == "" {
			addr = ":9090"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(c.App.ErrWriter, "metrics server error: %v\n", err)
			}
		}()
		fmt.Fprintf(c.App.Writer, "metrics listening on %s\n", addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	<-ctx.Done()
	fmt.Fprintln(c.App.Writer, "shutting down")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	return nil
}
