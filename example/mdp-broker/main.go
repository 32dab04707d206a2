// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo broker
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/mdbroker/logging"
	"github.com/destiny/mdbroker/majordomo"
)

func main() {
	app := cli.NewApp()
	app.Name = "mdp-broker"
	app.Usage = "Majordomo service broker"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "endpoint, e",
			Value:  "tcp://*:5555",
			Usage:  "the bind address eg: tcp://*:5555",
			EnvVar: "MDP_ENDPOINT",
		},
		cli.DurationFlag{
			Name:   "heartbeat",
			Value:  majordomo.DefaultHeartbeatInterval,
			Usage:  "heartbeat interval",
			EnvVar: "MDP_HEARTBEAT",
		},
		cli.IntFlag{
			Name:   "liveness",
			Value:  majordomo.DefaultHeartbeatLiveness,
			Usage:  "missed heartbeats before a worker is dropped",
			EnvVar: "MDP_LIVENESS",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "error, warn, info, debug or trace",
			EnvVar: "MDP_LOG_LEVEL",
		},
		cli.DurationFlag{
			Name:   "stats-interval",
			Value:  10 * time.Second,
			Usage:  "how often to log broker stats, 0 disables",
			EnvVar: "MDP_STATS_INTERVAL",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger := logging.NewConsole(logging.LogLevelError)
		logger.Fatal().Err(err).Msg("mdp-broker failed")
	}
}

func run(c *cli.Context) error {
	level, err := logging.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := logging.NewConsole(level)

	broker := majordomo.NewBroker(c.String("endpoint"), &majordomo.BrokerOptions{
		HeartbeatInterval: c.Duration("heartbeat"),
		HeartbeatLiveness: c.Int("liveness"),
		Logger:            &logger,
	})
	if err := broker.Bind(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return broker.Run(ctx)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down broker")
			broker.Stop()
		case <-ctx.Done():
		}
		return nil
	})

	if every := c.Duration("stats-interval"); every > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					stats, err := broker.Stats(ctx)
					if errors.Is(err, majordomo.ErrBrokerNotRunning) || ctx.Err() != nil {
						return nil
					}
					if err != nil {
						return err
					}
					logger.Info().Interface("stats", stats).Msg("broker stats")
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	return g.Wait()
}
