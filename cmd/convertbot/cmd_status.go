package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <order_id>",
	Short: "Check an order's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := container.ConvertGW.OrderStatus(cmd.Context(), args[0], "")
		if err != nil {
			return fmt.Errorf("order status: %w", err)
		}
		fmt.Printf("Order %s: %s\n", args[0], status.Status)
		if status.ToAmount.IsPositive() {
			fmt.Printf("To amount: %s\n", status.ToAmount.String())
		}
		return nil
	},
}
