// Command mujina-cli is a thin client against a running mujina daemon's
// HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/mujina-miner/mujina/internal/cli"
	"github.com/mujina-miner/mujina/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mujina-cli status [--copy]")
		os.Exit(cli.ExitArgvError)
	}

	switch os.Args[1] {
	case "status":
		os.Exit(cli.RunStatus(os.Args[2:], config.APIURL(), os.Stdout, os.Stderr))
	default:
		fmt.Fprintf(os.Stderr, "mujina-cli: unknown subcommand %q\n", os.Args[1])
		os.Exit(cli.ExitArgvError)
	}
}
