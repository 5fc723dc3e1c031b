// Command adjutant runs the agent round-table engine: channels and the
// gateway feed the orchestrator, specialists write to the shared record
// store, background jobs keep the backlog honest.
package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "chat":
		err = runChat(args)
	case "snapshot":
		err = runSnapshot(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'adjutant --help' for usage.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`adjutant - multi-agent backlog and planning engine

USAGE:
    adjutant [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the engine with configured channels, gateway, and jobs
                (default when no command is given)
    chat        Interactive terminal chat with the agent round-table
    snapshot    Print the current record store snapshot as JSON

FLAGS:
    --config PATH    Config file (default: ./adjutant.yaml, then defaults)`)
}
