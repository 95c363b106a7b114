// Package main runs a headless multi-robot GBP simulation from a config file.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/gbpplanner/config"
	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/planner"
	"go.viam.com/gbpplanner/telemetry"
)

const (
	flagConfig      = "config"
	flagDebug       = "debug"
	flagLogFile     = "log-file"
	flagTicks       = "ticks"
	flagDot         = "dot"
	flagPlot        = "plot"
	flagMetricsAddr = "metrics-addr"
	flagWatch       = "watch"
)

var logger = logging.NewLogger("simulate")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "simulate",
		Usage: "plan trajectories for many robots with gaussian belief propagation",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also append logs to `FILE`",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
				c.Context = logging.EnableDebugMode(c.Context, "")
			}
			if path := c.Path(flagLogFile); path != "" {
				appender, err := logging.NewFileAppender(path)
				if err != nil {
					return errors.Wrap(err, "opening log file")
				}
				logger.AddAppender(appender)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a simulation until every robot has arrived",
				UsageText: "simulate run --config sim.json [--ticks N] [--dot graph.svg] [--plot trails.png]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "load configuration from `FILE`",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagTicks,
						Usage: "run this many ticks as fast as possible instead of in real time",
					},
					&cli.PathFlag{
						Name:  flagDot,
						Usage: "write the factor graphs to `FILE` when done; the extension picks dot, svg or png",
					},
					&cli.PathFlag{
						Name:  flagPlot,
						Usage: "write a PNG plot of the trajectories to `FILE` when done",
					},
					&cli.StringFlag{
						Name:  flagMetricsAddr,
						Usage: "serve prometheus metrics on `ADDR`",
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "restart the simulation whenever the config file changes",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Action: func(c *cli.Context) error {
					return printJSON(c, config.Schema())
				},
			},
			{
				Name:  "defaults",
				Usage: "print the default configuration",
				Action: func(c *cli.Context) error {
					return printJSON(c, config.Default())
				},
			},
		},
	}
}

func printJSON(c *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type runOptions struct {
	ticks   int
	dot     string
	plot    string
	metrics *telemetry.Metrics
}

func runAction(c *cli.Context, logger logging.Logger) error {
	ctx := c.Context
	opts := runOptions{ticks: c.Int(flagTicks), dot: c.Path(flagDot), plot: c.Path(flagPlot)}
	path := c.Path(flagConfig)

	if addr := c.String(flagMetricsAddr); addr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := telemetry.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts.metrics = metrics
		stop := serveMetrics(addr, metrics, logger)
		defer stop()
	}

	if c.Bool(flagWatch) {
		return runWatching(ctx, path, opts, logger)
	}
	cfg, err := config.Read(ctx, path, logger)
	if err != nil {
		return err
	}
	return simulate(ctx, cfg, opts, logger)
}

func serveMetrics(addr string, metrics *telemetry.Metrics, logger logging.Logger) func() {
	server := &http.Server{Addr: addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	utils.PanicCapturingGo(func() {
		logger.Infow("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	})
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warnw("shutting down metrics server", "error", err)
		}
	}
}

// runWatching restarts the simulation on every config change until ctx is done. A finished
// simulation waits for the next change.
func runWatching(ctx context.Context, path string, opts runOptions, logger logging.Logger) (err error) {
	watcher, err := config.NewWatcher(ctx, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, watcher.Close())
	}()
	cfg, err := config.Read(ctx, path, logger)
	if err != nil {
		return err
	}

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		utils.PanicCapturingGo(func() {
			done <- simulate(runCtx, cfg, opts, logger)
		})

		select {
		case <-ctx.Done():
			cancel()
			return <-done
		case next := <-watcher.Config():
			cancel()
			if runErr := <-done; runErr != nil {
				logger.Warnw("simulation stopped with error", "error", runErr)
			}
			logger.Info("config changed, restarting simulation")
			cfg = next
		case runErr := <-done:
			cancel()
			if runErr != nil {
				return runErr
			}
			select {
			case <-ctx.Done():
				return nil
			case cfg = <-watcher.Config():
				logger.Info("config changed, restarting simulation")
			}
		}
	}
}

func simulate(ctx context.Context, cfg *config.Config, opts runOptions, logger logging.Logger) error {
	field, err := planner.LoadField(cfg, logger)
	if err != nil {
		return err
	}
	simOpts := []planner.Option{}
	if opts.metrics != nil {
		simOpts = append(simOpts, planner.WithMetrics(opts.metrics))
	}
	sim, err := planner.NewSimulation(cfg, field, logger.Sublogger("simulation"), simOpts...)
	if err != nil {
		return err
	}
	defer sim.Close()

	if opts.ticks > 0 {
		err = sim.Advance(ctx, opts.ticks)
	} else {
		err = sim.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := sim.Stats()
	counters := sim.Counters()
	logger.Infow("simulation stopped",
		"ticks", counters.Ticks,
		"elapsed", sim.Elapsed(),
		"arrived", stats.Arrived,
		"robots", stats.Robots,
		"messages_internal", counters.Total.Internal.Sent,
		"messages_external", counters.Total.External.Sent,
	)

	if opts.dot != "" {
		if err := writeFile(opts.dot, func(f *os.File) error {
			return sim.WriteGraphviz(ctx, f, graphvizFormat(opts.dot))
		}); err != nil {
			return err
		}
	}
	if opts.plot != "" {
		if err := writeFile(opts.plot, func(f *os.File) error {
			return sim.WriteTrajectoryPlot(f)
		}); err != nil {
			return err
		}
	}
	return nil
}

func graphvizFormat(path string) graphviz.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return graphviz.SVG
	case ".png":
		return graphviz.PNG
	default:
		return graphviz.XDOT
	}
}

func writeFile(path string, write func(f *os.File) error) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return write(f)
}
