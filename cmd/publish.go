package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/bosswave/client"
	"github.com/luma/bosswave/internal/env"
	"github.com/luma/bosswave/protocol"
)

var (
	routerAddr string

	command  string
	kvFields map[string]string
	poFields map[string]string
	roFields map[string]string

	publishTimeout time.Duration
)

func init() {
	flags := PublishCmd.Flags()

	flags.StringVarP(&routerAddr, "router", "r", "", "Router address (default $BOSSWAVE_ROUTER_ADDR or 127.0.0.1:28589)")
	flags.StringVar(&command, "command", "PUB ", "The 4 byte message command")
	flags.StringToStringVar(&kvFields, "kv", nil, "Key/value fields, key=value")
	flags.StringToStringVar(&poFields, "po", nil, "Payload object fields, key=value")
	flags.StringToStringVar(&roFields, "ro", nil, "Routing object fields, key=value")
	flags.DurationVar(&publishTimeout, "timeout", 5*time.Second, "How long to wait for the message to be written")

	ListenCmd.Flags().StringVarP(&routerAddr, "router", "r", "", "Router address (default $BOSSWAVE_ROUTER_ADDR or 127.0.0.1:28589)")
}

var PublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a single message to a router",
	Long: `Publish a single message to a router

Usage
	bosswave publish --kv temp=21.5 --po reading=... --ro uri=devices/a

`,
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

		cmdBytes, err := protocol.ParseCommand(command)
		if err != nil {
			return err
		}

		conn, err := connect(ctx, conf, log)
		if err != nil {
			return err
		}

		defer func() {
			if err := conn.Disconnect(); err != nil {
				log.Warn("Failed to disconnect cleanly", zap.Error(err))
			}
		}()

		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		seqNo, err := conn.Publish(publishCtx, cmdBytes,
			toGroup(kvFields), toGroup(poFields), toGroup(roFields))
		if err != nil {
			return fmt.Errorf("Failed to publish: %w", err)
		}

		log.Info("Published", zap.Uint32("seqNo", seqNo), zap.Stringer("command", cmdBytes))
		return nil
	},
}

func connect(ctx context.Context, conf *env.Config, log *zap.Logger) (*client.Conn, error) {
	addr := routerAddr
	if addr == "" {
		addr = conf.RouterAddr
	}

	opts := conf.EngineOptions()
	opts.Log = log.Named("engine")

	conn := client.New(log.Named("client"), client.Options{Engine: opts})
	if err := conn.Connect(ctx, addr); err != nil {
		return nil, err
	}

	return conn, nil
}

func toGroup(fields map[string]string) map[string][]byte {
	group := make(map[string][]byte, len(fields))
	for k, v := range fields {
		group[k] = []byte(v)
	}

	return group
}
