package main

import (
	"os"

	"TradeReview/cmd/admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
