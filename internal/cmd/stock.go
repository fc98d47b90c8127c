package cmd

import (
	"context"
	"fmt"
	"os"

	"keyshop-bot/internal/config"
	"keyshop-bot/internal/model"

	"github.com/spf13/cobra"
)

func newStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stock",
		Short: "Print available keys per tier",
		RunE:  runStock,
	}
}

func runStock(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	stock, err := repo.Counts(context.Background())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Store: %s\n", cfg.Store.Type)
	for _, t := range model.Tiers {
		_, _ = fmt.Fprintf(os.Stdout, "%-6s %d keys (%d đ each)\n", t, stock[t], t.Price())
	}
	return nil
}
