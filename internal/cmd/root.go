package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for keyshop-bot.
// Bare invocation runs the bot and webhook server.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "keyshop-bot",
		Short:         "Discord shop bot selling license keys",
		Long:          "keyshop-bot posts a purchase panel on Discord, records orders and delivers keys when the payment webhook confirms a transfer.",
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       v,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStockCmd())

	return root
}
