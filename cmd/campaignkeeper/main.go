package main

import (
	"os"

	"github.com/solatis/campaignkeeper/cmd/campaignkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
