// Command armctl sends one command, or a trajectory file, to an arm controller.
//
//	armctl [-config armctl.toml] [-addr host:port] <command> [args]
//
//	pos                          print the current position
//	home                         return to the home pose
//	stop                         halt the current motion
//	move x y z [ms]              move the tool point
//	angles x y z a a1 a2 [ms]    move with explicit joint angles
//	traj file.toml [ms]          run a trajectory file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"armlink/client"
	"armlink/config"
	"armlink/logging"
	"armlink/message"
	"armlink/middleware"
	"armlink/observability"
	"armlink/trajectory"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "armctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("armctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	addr := fs.String("addr", "", "controller address, overrides the config file")
	metricsListen := fs.String("metrics", "", "serve /metrics on this address, overrides the config file")
	noHome := fs.Bool("no-home", false, "do not home the arm on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Client.Address = *addr
	}
	if *metricsListen != "" {
		cfg.MetricsListen = *metricsListen
	}
	if *noHome {
		cfg.Client.HomeOnShutdown = false
	}

	logger := logging.Init("armctl", cfg.Log)
	cfg.Summary(logger.Debug()).Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		return err
	}

	arm := client.New(cfg.Client, client.WithLogger(logger), client.WithMetrics(metrics))
	if cfg.MetricsListen != "" {
		router := observability.NewRouter("armctl", reg, func() bool {
			return arm.State() == client.StateConnected
		})
		go func() {
			if err := observability.Serve(ctx, cfg.MetricsListen, router, logger); err != nil {
				logger.Error().Err(err).Msg("observability endpoint stopped")
			}
		}()
	}

	if err := arm.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		// The signal context may already be done; homing gets a fresh one
		if err := arm.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}()

	return dispatch(ctx, arm, logger, fs.Arg(0), fs.Args()[1:])
}

func dispatch(ctx context.Context, arm *client.Client, logger zerolog.Logger, cmd string, args []string) error {
	switch cmd {
	case "pos":
		pos, res := arm.GetPosition(ctx)
		if !res.Success {
			return fmt.Errorf("position: %s", res.Message)
		}
		fmt.Println(pos)
		return nil

	case "home":
		return report(arm.Home(ctx))

	case "stop":
		return report(arm.Stop(ctx))

	case "move":
		v, ms, err := parseFloats(args, 3)
		if err != nil {
			return fmt.Errorf("move: %w", err)
		}
		return report(arm.MoveXYZ(ctx, v[0], v[1], v[2], ms))

	case "angles":
		v, ms, err := parseFloats(args, 6)
		if err != nil {
			return fmt.Errorf("angles: %w", err)
		}
		return report(arm.MoveWithAngles(ctx, v[0], v[1], v[2], v[3], v[4], v[5], ms))

	case "traj":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("traj: usage: traj file.toml [ms]")
		}
		f, err := trajectory.LoadFile(args[0])
		if err != nil {
			return err
		}
		var override int32
		if len(args) == 2 {
			if override, err = parseMs(args[1]); err != nil {
				return fmt.Errorf("traj: %w", err)
			}
		}
		runner := trajectory.NewRunner(arm)
		runner.Logger = logger.With().Str("component", "trajectory").Str("file", args[0]).Logger()
		r, err := f.Run(ctx, runner, override)
		fmt.Printf("%d/%d points\n", r.Completed, r.Total)
		return err

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func report(res message.Result) error {
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Command, res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

// parseFloats reads exactly n values plus an optional trailing duration in ms.
func parseFloats(args []string, n int) ([]float64, int32, error) {
	if len(args) != n && len(args) != n+1 {
		return nil, 0, fmt.Errorf("want %d values and an optional duration, got %d arguments", n, len(args))
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("argument %d: %w", i+1, err)
		}
		values[i] = v
	}
	if len(args) == n {
		return values, 0, nil
	}
	ms, err := parseMs(args[n])
	return values, ms, err
}

func parseMs(s string) (int32, error) {
	ms, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	return int32(ms), nil
}
