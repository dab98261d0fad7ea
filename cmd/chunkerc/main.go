package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkernet/chunker/build"
)

// globalClient is filled out by cobra from the --addr flag on the root
// command and used by every subcommand.
var globalClient *Client

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("Chunker Client v" + build.Version)
}

func main() {
	var addr string

	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "Chunker Client v" + build.Version,
		Long:  "Chunker Client v" + build.Version,
		PersistentPreRun: func(*cobra.Command, []string) {
			globalClient = NewClient(addr)
		},
	}
	root.PersistentFlags().StringVarP(&addr, "addr", "a", "localhost:8480", "host:port the chunkerd API listens on")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run:   versionCmd,
		},
		createCmd,
		addCmd,
		removeCmd,
		healCmd,
		fetchCmd,
		listCmd,
		stateCmd,
		quitCmd,
	)

	if err := root.Execute(); err != nil {
		os.Exit(64)
	}
}
