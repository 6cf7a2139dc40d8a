package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCommand(opts)

	cmd := &cobra.Command{
		Use:           "goodscommunity",
		Short:         "GoodsCommunity backend: members, products and live notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare invocation serves.
		RunE: serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./config.toml)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newSchemaCommand(opts))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "goodscommunity:", err)
		os.Exit(1)
	}
}
