package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rushteam/persona/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "persona:", err.Message)
		os.Exit(err.Code)
	}
}
