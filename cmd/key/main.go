package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"fieldnav/internal/cli"
)

func main() {
	if err := cli.RunToken(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}
