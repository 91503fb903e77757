package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "swapper",
		Short:        "Swap whitelisted tokens for the stablecoin 1:1",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file with SWAPPER_* variables")

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "List configured tokens with on-chain details",
		RunE:  runTokens,
	}
	addSessionFlags(tokensCmd.Flags())
	root.AddCommand(tokensCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show swap readiness for a token and amount",
		RunE:  runStatus,
	}
	addSessionFlags(statusCmd.Flags())
	addIntentFlags(statusCmd.Flags())
	root.AddCommand(statusCmd)

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve the swap contract to spend the amount",
		RunE:  runApprove,
	}
	addSessionFlags(approveCmd.Flags())
	addIntentFlags(approveCmd.Flags())
	root.AddCommand(approveCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap the amount for the stablecoin",
		RunE:  runSwap,
	}
	addSessionFlags(swapCmd.Flags())
	addIntentFlags(swapCmd.Flags())
	root.AddCommand(swapCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSessionFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Ethereum RPC URL")
	flags.Uint64("chain-id", 11155111, "chain id (11155111 sepolia, 1 mainnet)")
	flags.String("swap-contract", "", "TokenSwap contract address")
	flags.String("stablecoin", "", "stablecoin address, read from the swap contract when empty")
	flags.String("token-list", "", "tokens as SYMBOL=address:Name (comma-separated)")
	flags.String("private-key", "", "hex private key used to sign")
	flags.String("owner", "", "read-only owner address")
	flags.Int("max-retries", 3, "maximum read retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial read retry backoff")
	flags.Duration("poll-interval", 4*time.Second, "receipt polling interval")
	flags.Uint64("gas-limit", 0, "gas limit override, 0 estimates")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.String("journal", "", "append transaction updates to this JSONL file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addIntentFlags(flags *pflag.FlagSet) {
	flags.String("token", "", "token symbol or address")
	flags.String("amount", "", "amount in token units")
	flags.Bool("max", false, "use the full token balance")
	flags.Duration("timeout", 0, "stop waiting after this long, 0 waits until done")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
