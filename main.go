package main

import (
	"fmt"
	"os"

	"github.com/spiffcs/deprecator/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "deprecator failed for the following reason - %v\n", err)
		os.Exit(1)
	}
}
