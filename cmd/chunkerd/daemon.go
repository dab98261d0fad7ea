package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/uplo-tech/errors"

	"github.com/chunkernet/chunker/api"
	"github.com/chunkernet/chunker/build"
	"github.com/chunkernet/chunker/core"
	"github.com/chunkernet/chunker/persist"
	"github.com/chunkernet/chunker/profile"
)

// installKillSignalHandler returns a channel that is closed when an
// interrupt, kill, or terminate signal is caught.
func installKillSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, os.Kill, syscall.SIGTERM)
	return sigChan
}

// startDaemon loads every existing repo, brings up the HTTP surface, and
// blocks until a kill signal is caught or the HTTP server fails.
func startDaemon(config Config) error {
	if err := build.EnsureConfigDir(); err != nil {
		return errors.AddContext(err, "failed to create config directory")
	}
	log, err := persist.NewFileLogger(filepath.Join(build.ConfigDir(), "chunkerd.log"))
	if err != nil {
		return errors.AddContext(err, "failed to open daemon log")
	}
	defer log.Close()

	c, err := core.New(log)
	if err != nil {
		return errors.AddContext(err, "failed to initialize core")
	}

	srv := &http.Server{
		Addr:    config.chunkerd.APIAddr,
		Handler: api.New(c),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	fmt.Println("Listening on " + config.chunkerd.APIAddr)

	sigChan := installKillSignalHandler()
	select {
	case err := <-serveErr:
		if err != nil && !errors.Contains(err, http.ErrServerClosed) {
			return err
		}
	case <-sigChan:
		fmt.Println("\rCaught stop signal, quitting...")
		if err := srv.Close(); err != nil {
			return err
		}
	}

	for _, r := range c.List() {
		if err := r.Stop(); err != nil {
			log.Println("error stopping repo", r.UUID, ":", err)
		}
	}
	return nil
}

func startDaemonCmd(_ *cobra.Command, _ []string) {
	if globalConfig.chunkerd.Profile != "" {
		flags, err := profile.ProcessProfileFlags(globalConfig.chunkerd.Profile)
		if err != nil {
			die(errors.AddContext(err, "failed to parse --profile flags"))
		}
		go profile.StartContinuousProfile(globalConfig.chunkerd.ProfileDir,
			strings.Contains(flags, "c"), strings.Contains(flags, "m"), strings.Contains(flags, "t"))
	}

	if err := startDaemon(globalConfig); err != nil {
		die(err)
	}
	fmt.Println("Shutdown complete.")
}
