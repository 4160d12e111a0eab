package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "search":
			if err := runSearch(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "excluded":
			if err := runExcluded(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("flatscout " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// No subcommand → launch TUI
	if err := runTUI(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `flatscout - apartment listing aggregator

Usage:
  flatscout                  Launch interactive TUI
  flatscout search [flags]   Run headless search
  flatscout excluded [flags] Manage the exclusion list
  flatscout version          Show version

Run 'flatscout search --help' or 'flatscout excluded --help' for flags.
`)
}
