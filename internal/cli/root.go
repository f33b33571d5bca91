// Package cli implements relayctl, the operator tool for a running
// relay fleet. Read-only commands go through the HTTP endpoints;
// fleet-wide commands publish on the same bus channels the instances
// subscribe to.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Operator tool for the game relay",
		Long: `relayctl operates a running relay fleet.

Read-only commands (health, public-key) talk to one instance over HTTP.
Fleet commands (kick, refresh-words) publish on the shared Redis bus and
take effect on every instance.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Relay instance URL (env: RELAYCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL for fleet commands (env: REDIS_URL)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newPublicKeyCmd())
	rootCmd.AddCommand(newKickCmd())
	rootCmd.AddCommand(newRefreshWordsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
