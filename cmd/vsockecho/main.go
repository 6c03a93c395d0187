// SPDX-License-Identifier: GPL-3.0-or-later

// Command vsockecho is a VSOCK echo server and client.
//
// Usage:
//
//	vsockecho [--config FILE] listen [--port N] [--framed] [--reply-prefix S]
//	vsockecho [--config FILE] connect [--cid N] [--port N] [--framed] [--linger D] [MESSAGE ...]
//
// The server answers each message with the reply prefix followed by the
// message. The client writes its messages, prints the replies and exits
// after the linger period. Flags override the TOML configuration file,
// whose tables are [server], [client] and [log].
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/bassosimone/vsocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "vsockecho: %v\n", err)
		os.Exit(1)
	}
}

// errUsage indicates invalid command line arguments.
var errUsage = errors.New("usage: vsockecho [--config FILE] listen|connect [flags]")

// run parses the command line and runs the selected subcommand.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	// Cobra reads os.Args when the args are nil.
	cmd.SetArgs(append([]string{}, args...))
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:               "vsockecho",
		Short:             "VSOCK echo server and client",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) <= 0 {
				return errUsage
			}
			return fmt.Errorf("%w: unknown subcommand %q", errUsage, args[0])
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(listenCmd(&configPath, stdout, stderr))
	cmd.AddCommand(connectCmd(&configPath, stdout, stderr))

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path of the TOML configuration file")

	return cmd
}

func listenCmd(configPath *string, stdout, stderr io.Writer) *cobra.Command {
	var flags serverConfig
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "run the echo server",
		Long:  `Listen on a VSOCK port and echo every message back with the reply prefix.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			overrideServer(cmd.Flags(), &cfg.Server, flags)
			logger, err := newLogger(stderr, cfg.Log)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), vsocket.NewConfig(), cfg.Server, stdout, logger)
		},
	}

	defaults := defaultConfig().Server
	cmd.Flags().Uint32Var(&flags.Port, "port", defaults.Port, "Port to listen on")
	cmd.Flags().BoolVar(&flags.Framed, "framed", defaults.Framed, "Use length-prefixed frames")
	cmd.Flags().StringVar(&flags.ReplyPrefix, "reply-prefix", defaults.ReplyPrefix, "Prefix of each reply")

	return cmd
}

func connectCmd(configPath *string, stdout, stderr io.Writer) *cobra.Command {
	var flags clientConfig
	cmd := &cobra.Command{
		Use:   "connect [MESSAGE ...]",
		Short: "run the echo client",
		Long:  `Connect to a VSOCK echo server, write the messages and print the replies.`,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			overrideClient(cmd.Flags(), &cfg.Client, flags)
			if len(args) > 0 {
				cfg.Client.Messages = args
			}
			logger, err := newLogger(stderr, cfg.Log)
			if err != nil {
				return err
			}
			logger = logger.With("spanID", vsocket.NewSpanID())
			return runClient(cmd.Context(), vsocket.NewConfig(), cfg.Client, stdout, logger)
		},
	}

	defaults := defaultConfig().Client
	cmd.Flags().Uint32Var(&flags.CID, "cid", defaults.CID, "Context id of the server")
	cmd.Flags().Uint32Var(&flags.Port, "port", defaults.Port, "Port of the server")
	cmd.Flags().BoolVar(&flags.Framed, "framed", defaults.Framed, "Use length-prefixed frames")
	cmd.Flags().DurationVar(&flags.Linger.Duration, "linger", defaults.Linger.Duration, "Time to wait for replies")

	return cmd
}

// overrideServer copies into dst the flags explicitly set on fs.
func overrideServer(fs *pflag.FlagSet, dst *serverConfig, src serverConfig) {
	if fs.Changed("port") {
		dst.Port = src.Port
	}
	if fs.Changed("framed") {
		dst.Framed = src.Framed
	}
	if fs.Changed("reply-prefix") {
		dst.ReplyPrefix = src.ReplyPrefix
	}
}

// overrideClient copies into dst the flags explicitly set on fs.
func overrideClient(fs *pflag.FlagSet, dst *clientConfig, src clientConfig) {
	if fs.Changed("cid") {
		dst.CID = src.CID
	}
	if fs.Changed("port") {
		dst.Port = src.Port
	}
	if fs.Changed("framed") {
		dst.Framed = src.Framed
	}
	if fs.Changed("linger") {
		dst.Linger = src.Linger
	}
}
