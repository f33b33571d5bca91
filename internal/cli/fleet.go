package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcadelink/relay/internal/bus"
	"github.com/arcadelink/relay/internal/model"
)

// fleetBus connects to the shared bus for fleet-wide commands.
func fleetBus() (bus.Bus, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("fleet commands need --redis or REDIS_URL")
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return bus.NewRedisBus(cfg.RedisURL, logger)
}

func publish(channel bus.Channel, envelope any) error {
	b, err := fleetBus()
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	payload, err := bus.Encode(envelope)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.Publish(ctx, channel, payload)
}

func newKickCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "kick <user-id>",
		Short: "Disconnect a user wherever they are connected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := bus.Kick{UserID: model.PlayerID(args[0]), Reason: reason}
			if err := publish(bus.ChannelKick, env); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage("kick published for " + args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "disconnected by operator", "Reason shown to the user")
	return cmd
}

func newRefreshWordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-words",
		Short: "Tell every instance to reload the blocked-word list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := publish(bus.ChannelWordlistRefresh, struct{}{}); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage("word list refresh published")
			return nil
		},
	}
}
