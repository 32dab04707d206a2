// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo worker
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/destiny/mdbroker/logging"
	"github.com/destiny/mdbroker/majordomo"
)

func main() {
	app := cli.NewApp()
	app.Name = "mdp-worker"
	app.Usage = "Majordomo echo worker"
	app.ArgsUsage = "<service>"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "endpoint, e",
			Value:  "tcp://127.0.0.1:5555",
			Usage:  "the broker address",
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
			Usage:  "missed heartbeats before reconnecting",
			EnvVar: "MDP_LIVENESS",
		},
		cli.DurationFlag{
			Name:  "delay",
			Value: 0,
			Usage: "simulated work per request",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "error, warn, info, debug or trace",
			EnvVar: "MDP_LOG_LEVEL",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger := logging.NewConsole(logging.LogLevelError)
		logger.Fatal().Err(err).Msg("mdp-worker failed")
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowAppHelp(c)
		return errors.New("service name is required")
	}
	level, err := logging.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := logging.NewConsole(level)
	service := majordomo.ServiceName(c.Args().First())
	delay := c.Duration("delay")

	echo := func(ctx context.Context, request []byte) ([]byte, error) {
		logger.Debug().Bytes("request", request).Msg("processing request")
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return request, nil
	}

	worker, err := majordomo.NewWorker(service, c.String("endpoint"), echo, &majordomo.WorkerOptions{
		HeartbeatInterval: c.Duration("heartbeat"),
		HeartbeatLiveness: c.Int("liveness"),
		Logger:            &logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = worker.Run(ctx)
	logger.Info().Interface("stats", worker.Stats()).Msg("worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
