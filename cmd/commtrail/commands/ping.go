// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/commtrail/commtrail/cmd/commtrail/cli"
)

func pingCommand() *cli.Command {
	var (
		connection Connection
		jsonOut    bool
	)

	return &cli.Command{
		Name:    "ping",
		Summary: "Check that the event service is up",
		Usage:   "commtrail ping [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ping", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			client, err := connection.client()
			if err != nil {
				return err
			}
			callCtx, cancel := callContext(ctx)
			defer cancel()
			pong, err := client.Ping(callCtx)
			if err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(pong)
			}
			uptime := time.Duration(pong.UptimeSeconds * float64(time.Second)).Round(time.Second)
			fmt.Printf("service up %s, %d events\n", uptime, pong.Events)
			return nil
		},
	}
}
