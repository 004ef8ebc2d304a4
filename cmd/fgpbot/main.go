package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fgp-bot/fgpbot/cmd/fgpbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exit *cmd.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
