package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkernet/chunker/build"
)

// globalConfig is filled out by cobra from the flags on the root command.
var globalConfig Config

const exitCodeUsage = 64

// Config holds every configurable variable for chunkerd.
type Config struct {
	chunkerd struct {
		APIAddr    string
		Profile    string
		ProfileDir string
	}
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("Chunker Daemon v" + build.Version)
}

func main() {
	if build.DEBUG {
		fmt.Println("Running with debugging enabled")
	}
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "Chunker Daemon v" + build.Version,
		Long:  "Chunker Daemon v" + build.Version,
		Run:   startDaemonCmd,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the Chunker Daemon",
		Run:   versionCmd,
	})

	root.Flags().StringVarP(&globalConfig.chunkerd.APIAddr, "api-addr", "", "localhost:8480", "which host:port the API server listens on")
	root.Flags().StringVarP(&globalConfig.chunkerd.Profile, "profile", "", "", "enable profiling with flags 'cmt' for CPU, memory, trace")
	root.Flags().StringVarP(&globalConfig.chunkerd.ProfileDir, "profile-directory", "", "profiles", "location of the profiling directory")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
