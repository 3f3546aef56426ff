package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/bosswave/internal/env"
	"github.com/luma/bosswave/protocol"
)

var ListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print every message a router forwards to this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configFile)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		conn, err := connect(ctx, conf, log)
		if err != nil {
			return err
		}

		defer func() {
			if err := conn.Disconnect(); err != nil {
				log.Warn("Failed to disconnect cleanly", zap.Error(err))
			}
		}()

		out := cmd.OutOrStdout()

		for {
			select {
			case <-ctx.Done():
				return nil

			case msg, ok := <-conn.Messages():
				if !ok {
					return fmt.Errorf("Router connection closed")
				}

				printMessage(out, msg)
			}
		}
	},
}

func printMessage(out io.Writer, msg *protocol.Message) {
	fmt.Fprintf(out, "%q seqno=%d framelength=%d\n", msg.Command.String(), msg.SeqNo, msg.FrameLength)

	for _, f := range msg.Fields() {
		fmt.Fprintf(out, "  %s %s = %q\n", f.Type, f.Key, f.Value)
	}
}
