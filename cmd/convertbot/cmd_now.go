package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	nowWallet string
	nowDryRun bool
)

var nowCmd = &cobra.Command{
	Use:   "now <from_asset> <to_asset> <amount>",
	Short: "Execute a conversion immediately",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, to := strings.ToUpper(args[0]), strings.ToUpper(args[1])
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		wallet := domain.Wallet(strings.ToUpper(nowWallet))
		dryRun := container.Config.DryRun
		if cmd.Flags().Changed("dry-run") {
			dryRun = nowDryRun
		}

		fmt.Printf("Quote %s->%s wallet=%s amount=%s\n", from, to, wallet, amount.String())

		quote, err := container.ConvertGW.GetQuote(ctx, from, to, amount, wallet)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		printQuote(quote)

		if quote.QuoteID == "" {
			return fmt.Errorf("quote did not return a quoteId")
		}
		if dryRun {
			fmt.Println("Dry run mode - acceptQuote not executed")
			return nil
		}

		order, _, err := container.ConvertGW.AcceptQuote(ctx, quote.QuoteID)
		if err != nil {
			return fmt.Errorf("accept quote: %w", err)
		}
		fmt.Printf("Order ID: %s\n", order.OrderID)
		return pollOrderStatus(ctx, order.OrderID, quote.QuoteID)
	},
}

func pollOrderStatus(ctx context.Context, orderID, quoteID string) error {
	cfg := container.Config
	deadline := time.Now().Add(time.Duration(cfg.OrderPollMaxSec) * time.Second)
	interval := time.Duration(cfg.OrderPollIntervalSec) * time.Second

	for {
		status, err := container.ConvertGW.OrderStatus(ctx, orderID, quoteID)
		if err != nil {
			return fmt.Errorf("order status: %w", err)
		}
		fmt.Printf("Status: %s\n", status.Status)
		if status.ToAmount.IsPositive() {
			fmt.Printf("To amount: %s\n", status.ToAmount.String())
		}
		if status.Status.IsTerminal() || time.Now().After(deadline) {
			return nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func init() {
	nowCmd.Flags().StringVar(&nowWallet, "wallet", "SPOT", "wallet to convert from (SPOT or FUNDING)")
	nowCmd.Flags().BoolVar(&nowDryRun, "dry-run", false, "log the would-be conversion without a signed POST")
}
