package cli

import (
	"flag"
	"fmt"
	"io"
)

// Exit codes per the CLI's external contract: 0 success, 1 argv error, 2
// transport error (can't reach or parse the daemon's response).
const (
	ExitOK        = 0
	ExitArgvError = 1
	ExitTransport = 2
)

// RunStatus implements the `status` subcommand: fetch GET /v0/miner and
// render it to stdout, optionally copying the plain-text summary to the
// clipboard. Returns the process exit code.
func RunStatus(args []string, apiURL string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	copyFlag := fs.Bool("copy", false, "copy the rendered summary to the clipboard")
	if err := fs.Parse(args); err != nil {
		return ExitArgvError
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "status: unexpected arguments: %v\n", fs.Args())
		return ExitArgvError
	}

	client := NewAPIClient(apiURL)
	state, err := client.GetMiner()
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return ExitTransport
	}

	rendered := Render(state)
	fmt.Fprint(stdout, rendered)

	if *copyFlag {
		if err := CopyToClipboard(rendered); err != nil {
			fmt.Fprintf(stderr, "status: failed to copy to clipboard: %v\n", err)
			return ExitTransport
		}
	}

	return ExitOK
}
