// Package cli wires configuration, caches, providers and the aggregator
// together and exposes them as subcommands.
package cli

import (
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// GlobalFlags are accepted by every subcommand.
type GlobalFlags struct {
	Config   string `long:"config" short:"c" description:"Path to config file" default:"./config.yaml"`
	LogLevel string `long:"log-level" description:"Override the configured log level (debug, info, warn, error)"`
	Version  bool   `long:"version" description:"Show version and exit"`
}

type commands struct {
	Serve    *ServeCommand
	Search   *SearchCommand
	Featured *FeaturedCommand
	Event    *EventCommand
}

// buildParser constructs the go-flags parser with all subcommands
// registered. Command output goes to out.
func buildParser(version string, out io.Writer) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "eventscout"
	parser.LongDescription = "Search events across Ticketmaster, Eventbrite, PredictHQ, RapidAPI and ICS feeds."

	cmds := &commands{
		Serve:    &ServeCommand{globals: &globals, version: version},
		Search:   &SearchCommand{globals: &globals, out: out},
		Featured: &FeaturedCommand{globals: &globals, out: out},
		Event:    &EventCommand{globals: &globals, out: out},
	}

	parser.AddCommand("serve", "Run the HTTP API", "Start the HTTP API, the cache sweeper and the featured events warmer.", cmds.Serve)
	parser.AddCommand("search", "Search events once", "Run one federated search and print the result as JSON.", cmds.Search)
	parser.AddCommand("featured", "Print featured events", "Print the current featured events as JSON.", cmds.Featured)
	parser.AddCommand("event", "Print one event", "Print the details of one event by id as JSON.", cmds.Event)

	return parser, &globals, cmds
}

// Run is the main entry point using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses args (or os.Args if nil) and executes the matched
// subcommand.
func RunWithArgs(version string, args []string) error {
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	// --version is valid without a subcommand.
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("eventscout %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, os.Stdout)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}
	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}
