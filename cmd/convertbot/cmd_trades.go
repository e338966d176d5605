package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	tradesHours    int
	tradesLimit    int
	tradesDetailed bool
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Show recent convert history from the local ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := container.History.Recent(tradesLimit)
		if err != nil {
			return fmt.Errorf("recent history: %w", err)
		}

		cutoff := time.Now().Add(-time.Duration(tradesHours) * time.Hour).UnixMilli()
		var inWindow int
		for _, rec := range records {
			if rec.Timestamp < cutoff {
				continue
			}
			inWindow++
			if tradesDetailed {
				fmt.Printf("#%s %s->%s accepted=%v amount=%s error=%s\n",
					rec.OrderID, rec.FromToken, rec.ToToken, rec.Accepted, rec.FromAmount, rec.ErrorCode)
			}
		}
		fmt.Printf("Trades in last %dh: %d\n", tradesHours, inWindow)
		return nil
	},
}

func init() {
	tradesCmd.Flags().IntVar(&tradesHours, "hours", 24, "lookback window in hours")
	tradesCmd.Flags().IntVar(&tradesLimit, "limit", 100, "maximum records to fetch from the ledger")
	tradesCmd.Flags().BoolVar(&tradesDetailed, "detailed", false, "print each trade's detail line")
}
