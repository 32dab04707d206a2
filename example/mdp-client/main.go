// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo client
package main

import (
	"context"
	"errors"
	"fmt"
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
	app.Name = "mdp-client"
	app.Usage = "send requests to a Majordomo service"
	app.ArgsUsage = "<service> [message]"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "endpoint, e",
			Value:  "tcp://127.0.0.1:5555",
			Usage:  "the broker address",
			EnvVar: "MDP_ENDPOINT",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 2500 * time.Millisecond,
			Usage: "reply timeout per attempt",
		},
		cli.IntFlag{
			Name:  "retries",
			Value: 3,
			Usage: "attempts per request",
		},
		cli.IntFlag{
			Name:  "count, n",
			Value: 1,
			Usage: "number of requests to send",
		},
		cli.BoolFlag{
			Name:  "mmi",
			Usage: "only ask the broker whether the service is available",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "warn",
			Usage:  "error, warn, info, debug or trace",
			EnvVar: "MDP_LOG_LEVEL",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger := logging.NewConsole(logging.LogLevelError)
		logger.Fatal().Err(err).Msg("mdp-client failed")
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowAppHelp(c)
		return errors.New("service name is required")
	}
	level, err := logging.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := logging.NewConsole(level)
	service := majordomo.ServiceName(c.Args().First())

	client := majordomo.NewClient(c.String("endpoint"), &majordomo.ClientOptions{
		Timeout: c.Duration("timeout"),
		Retries: c.Int("retries"),
		Logger:  &logger,
	})
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Bool("mmi") {
		ok, err := client.ServiceAvailable(ctx, service)
		if err != nil {
			return err
		}
		fmt.Printf("%s available: %t\n", service, ok)
		return nil
	}

	message := []byte(c.Args().Get(1))
	for i := 0; i < c.Int("count"); i++ {
		start := time.Now()
		reply, err := client.Request(ctx, service, message)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%v)\n", reply, time.Since(start))
	}
	return nil
}
