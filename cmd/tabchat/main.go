// Command tabchat is the terminal client for tabchat.
package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/tabchat/internal/client/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
