package main

import (
	"fmt"
	"strings"

	"github.com/aristath/convertbot/internal/decimalx"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <from_asset> <to_asset>",
	Short: "Show route limits and wallet balances for a pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := strings.ToUpper(args[0]), strings.ToUpper(args[1])
		ctx := cmd.Context()

		route, err := container.ConvertGW.ExchangeInfo(ctx, from, to)
		if err != nil {
			return fmt.Errorf("exchange info: %w", err)
		}

		fmt.Printf("Pair: %s/%s\n", from, to)
		if route.MinQuote().IsPositive() {
			fmt.Printf("Min amount: %s\n", route.MinQuote().String())
		}
		if route.MaxQuote().IsPositive() {
			fmt.Printf("Max amount: %s\n", route.MaxQuote().String())
		}

		for _, wallet := range []domain.Wallet{domain.WalletSpot, domain.WalletFunding} {
			balances, err := container.Balances.ReadAll(ctx, wallet)
			if err != nil {
				return fmt.Errorf("read balances (%s): %w", wallet, err)
			}
			fmt.Printf("%s: %s=%s %s=%s\n", wallet,
				from, decimalx.FloorString8(balances[from]),
				to, decimalx.FloorString8(balances[to]))
		}
		return nil
	},
}
