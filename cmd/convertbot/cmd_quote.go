package main

import (
	"fmt"
	"strings"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var quoteWallet string

var quoteCmd = &cobra.Command{
	Use:   "quote <from_asset> <to_asset> <amount>",
	Short: "Fetch a convert quote",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := strings.ToUpper(args[0]), strings.ToUpper(args[1])
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		wallet := domain.Wallet(strings.ToUpper(quoteWallet))

		fmt.Printf("Quote %s->%s wallet=%s amount=%s\n", from, to, wallet, amount.String())

		quote, err := container.ConvertGW.GetQuote(cmd.Context(), from, to, amount, wallet)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		printQuote(quote)
		return nil
	},
}

func printQuote(q *domain.Quote) {
	fmt.Printf("Ratio: %s\n", q.Ratio.String())
	fmt.Printf("To amount: %s\n", q.ToAmount.String())
	fmt.Printf("Expires: %d\n", q.ValidTimestamp)
}

func init() {
	quoteCmd.Flags().StringVar(&quoteWallet, "wallet", "SPOT", "wallet to quote from (SPOT or FUNDING)")
}
