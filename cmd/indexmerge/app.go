package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/hupe1980/indexmerge"
	"github.com/hupe1980/indexmerge/resource"
)

var planFlag = &cli.StringFlag{
	Name:     "plan",
	Aliases:  []string{"p"},
	Usage:    "merge plan file (YAML)",
	Required: true,
	EnvVars:  []string{"INDEXMERGE_PLAN"},
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:                 "indexmerge",
		Usage:                "merge the indexes of sealed segments",
		EnableBashCompletion: true,
		Writer:               out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "minimum log level: debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "write logs as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "docmapper",
				Usage:  "build the reclaim doc mapper of a plan from the deletion maps of its sources",
				Flags:  []cli.Flag{planFlag, &cli.IntFlag{Name: "targets", Usage: "number of plan targets to fill, 0 for all"}},
				Action: docMapperAction,
			},
			{
				Name:  "merge",
				Usage: "merge every index of a plan into its target segments",
				Flags: []cli.Flag{
					planFlag,
					&cli.IntFlag{
						Name:  "concurrency",
						Value: 1,
						Usage: "index mergers running at once",
					},
					&cli.Int64Flag{
						Name:  "memory-limit",
						Usage: "bytes of estimated merge memory admitted at once, 0 for unlimited",
					},
					&cli.Int64Flag{
						Name:  "io-limit",
						Usage: "output bytes per second, 0 for unlimited",
					},
					&cli.Int64Flag{
						Name:  "cache-bytes",
						Usage: "block cache for remote segments, overrides the plan file",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "serve Prometheus metrics on this address while merging",
					},
				},
				Action: mergeAction,
			},
		},
	}
}

func logger(c *cli.Context) (*indexmerge.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("bad --log-level %q: %w", c.String("log-level"), err)
	}
	if c.Bool("log-json") {
		return indexmerge.NewJSONLogger(level), nil
	}
	return indexmerge.NewTextLogger(level), nil
}

func docMapperAction(c *cli.Context) error {
	log, err := logger(c)
	if err != nil {
		return err
	}
	pf, err := indexmerge.LoadPlanFile(c.String("plan"))
	if err != nil {
		return err
	}
	m, err := pf.BuildDocMapper(c.Context, indexmerge.NewStoreOpener(pf.CacheBytes, nil), c.Int("targets"))
	if err != nil {
		return err
	}
	log.InfoContext(c.Context, "doc mapper stored",
		"name", pf.DocMapper,
		"old_docs", m.OldDocCount(),
		"new_docs", m.GetNewDocCount(),
	)
	for _, id := range m.TargetSegmentIDs() {
		fmt.Fprintf(c.App.Writer, "segment %d: %d docs\n", id, m.GetTargetSegmentDocCount(id))
	}
	return nil
}

func mergeAction(c *cli.Context) error {
	log, err := logger(c)
	if err != nil {
		return err
	}
	if c.Int("concurrency") < 1 {
		return fmt.Errorf("--concurrency must be positive")
	}
	if c.Int64("memory-limit") < 0 || c.Int64("io-limit") < 0 {
		return fmt.Errorf("limits cannot be negative")
	}
	pf, err := indexmerge.LoadPlanFile(c.String("plan"))
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:    c.Int64("memory-limit"),
		MaxConcurrentMerges: int64(c.Int("concurrency")),
		IOLimitBytesPerSec:  c.Int64("io-limit"),
	})
	cacheBytes := pf.CacheBytes
	if c.IsSet("cache-bytes") {
		cacheBytes = c.Int64("cache-bytes")
	}
	plan, err := pf.Plan(c.Context, indexmerge.NewStoreOpener(cacheBytes, rc))
	if err != nil {
		return err
	}

	opts := []indexmerge.Option{
		indexmerge.WithLogger(log),
		indexmerge.WithResourceController(rc),
		indexmerge.WithConcurrency(c.Int("concurrency")),
	}
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		obs, err := indexmerge.NewPrometheusObserver(reg)
		if err != nil {
			return err
		}
		opts = append(opts, indexmerge.WithMetrics(obs))
		stop := serveMetrics(log, addr, reg)
		defer stop()
	}

	res, err := indexmerge.Run(c.Context, plan, opts...)
	if err != nil {
		return err
	}
	for _, ir := range res.Indexes {
		fmt.Fprintf(c.App.Writer, "%-10s %-24s %12s %10d bytes\n", ir.Kind, ir.Name, ir.Duration.Round(time.Millisecond), ir.BytesWritten)
	}
	for _, t := range res.Targets {
		fmt.Fprintf(c.App.Writer, "segment %d: %d docs\n", t.SegmentID, t.DocCount)
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(log *indexmerge.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
