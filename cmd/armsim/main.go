// Command armsim runs a simulated arm controller on a TCP port.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"armlink/codec"
	"armlink/logging"
	"armlink/observability"
	"armlink/protocol"
	"armlink/simulator"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "armsim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("armsim", flag.ContinueOnError)
	listen := fs.String("listen", fmt.Sprintf(":%d", protocol.DefaultPort), "controller listen address")
	layoutName := fs.String("layout", "raw", `motion payload layout, "raw" or "padded"`)
	metricsListen := fs.String("metrics", "", "serve /metrics, /health and /arm on this address")
	level := fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	layout, err := codec.ParseLayout(*layoutName)
	if err != nil {
		return err
	}
	logCfg := logging.DefaultConfig()
	if lvl, ok := logging.ParseLevel(*level); ok {
		logCfg.Level = lvl
	}
	logger := logging.Init("armsim", logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	arm := simulator.NewArm(layout)
	svr := simulator.NewServer(arm, simulator.WithLogger(logger), simulator.WithRegisterer(reg))

	l, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}

	if *metricsListen != "" {
		router := observability.NewRouter("armsim", reg, nil)
		router.GET("/arm", armState(arm))
		go func() {
			if err := observability.Serve(ctx, *metricsListen, router, logger); err != nil {
				logger.Error().Err(err).Msg("observability endpoint stopped")
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- svr.Serve(l) }()
	logger.Info().Str("layout", layout.String()).Msg("simulator started")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	return svr.Shutdown(5 * time.Second)
}

func armState(arm *simulator.Arm) gin.HandlerFunc {
	return func(c *gin.Context) {
		pos := arm.Position()
		angles := arm.Angles()
		c.JSON(http.StatusOK, gin.H{
			"position": gin.H{"x": pos.X, "y": pos.Y, "z": pos.Z},
			"angles":   gin.H{"alpha": angles.Alpha, "alpha1": angles.Alpha1, "alpha2": angles.Alpha2},
			"commands": len(arm.History()),
		})
	}
}
