package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/HyphaGroup/parker/internal/config"
	"github.com/HyphaGroup/parker/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			cmdRun(os.Args[2:])
			return
		case "init":
			cmdInit(os.Args[2:])
			return
		case "solutions":
			cmdSolutions(os.Args[2:])
			return
		case "--version", "-v":
			fmt.Printf("parker %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	// Default: run the search
	cmdRun(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`Parker %s - search for a 3x3 magic square of squares

Usage: parker [command] [options]

Commands:
  run (default)  Enumerate candidate triples below the ceiling and test them
  init           Write a default parker.jsonc
  solutions      List triples of the latest run that passed the square test

Run Options:
  --config <dir>     Directory holding parker.jsonc
  --fresh            Start a new run instead of resuming the latest one

Config Precedence:
  1. --config flag
  2. ./config/parker.jsonc
  3. ~/.parker/config/parker.jsonc
  4. built-in defaults

Examples:
  parker init                      Write ./config/parker.jsonc
  parker --config ./config         Run with a specific config directory
  parker solutions --limit 10      Show the first ten solutions
`, Version)
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "config", "Directory to write parker.jsonc into")
	_ = fs.Parse(args)

	path, err := config.WriteDefault(*dirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Set search.ceiling to the bound you want to search below")
	fmt.Printf("  2. Run: parker --config %s\n", *dirFlag)
}

func cmdSolutions(args []string) {
	fs := flag.NewFlagSet("solutions", flag.ExitOnError)
	configFlag := fs.String("config", "", "Directory holding parker.jsonc")
	runFlag := fs.String("run", "", "Run ID (default: latest run for the configured ceiling)")
	limitFlag := fs.Int("limit", 0, "Maximum number of solutions to print, 0 for all")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = st.Close() }()

	var run *store.Run
	if *runFlag != "" {
		run, err = st.GetRun(*runFlag)
	} else {
		run, err = st.LatestRun(cfg.Search.Ceiling)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		fmt.Println("No run found.")
		return
	}
	if err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}

	solutions, err := st.ListSolutions(run.ID)
	if err != nil {
		log.Fatalf("Failed to list solutions: %v", err)
	}

	fmt.Printf("Run %s (ceiling %d, %s, tested to %s)\n", run.ID, run.Ceiling, run.Status, run.Cursor)
	if len(solutions) == 0 {
		fmt.Println("No solutions.")
		return
	}
	if *limitFlag > 0 && len(solutions) > *limitFlag {
		solutions = solutions[:*limitFlag]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "X\tY\tZ\tFOUND")
	for _, sol := range solutions {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", sol.Triple.X, sol.Triple.Y, sol.Triple.Z, sol.FoundAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
