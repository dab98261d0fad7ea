package main

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"github.com/uplo-tech/fastrand"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"

	mnemonics "github.com/uplo-tech/entropy-mnemonics"
)

const keyEntropySize = 32

var (
	createChunkfile string
	createDirectory string
	createName      string
	createType      string
	createKey       string
	createAdd       bool

	addChunkfile string
	addDirectory string
	addName      string
	addKey       string

	removeUUID string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a manifest from a directory",
	Run: func(*cobra.Command, []string) {
		values := url.Values{}
		values.Set("chunkfile", createChunkfile)
		values.Set("directory", createDirectory)
		if createName != "" {
			values.Set("name", createName)
		}
		if createType != "" {
			values.Set("type", createType)
		}
		if createAdd {
			values.Set("add", "on")
		}

		switch createKey {
		case "":
			// unencrypted repo
		case "generate":
			entropy := fastrand.Bytes(keyEntropySize)
			values.Set("key", hex.EncodeToString(entropy))
			phrase, err := mnemonics.ToPhrase(entropy, mnemonics.English)
			if err != nil {
				die("could not encode key as a mnemonic:", err)
			}
			fmt.Println("Generated repo key, write this down — it will not be shown again:")
			fmt.Println(phrase.String())
		default:
			entropy, err := mnemonics.FromPhrase(mnemonics.Phrase(strings.Fields(createKey)), mnemonics.English)
			if err != nil {
				die("could not parse --key as a mnemonic phrase:", err)
			}
			values.Set("key", hex.EncodeToString(entropy))
		}

		result, err := globalClient.Call("create", nil, values)
		if err != nil {
			die("create failed:", err)
		}
		fmt.Println("Created repo", result["uuid"])
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Load an existing manifest and start tracking it",
	Run: func(*cobra.Command, []string) {
		values := url.Values{}
		values.Set("chunkfile", addChunkfile)
		if addDirectory != "" {
			values.Set("directory", addDirectory)
		}
		if addName != "" {
			values.Set("name", addName)
		}
		if addKey != "" {
			entropy, err := mnemonics.FromPhrase(mnemonics.Phrase(strings.Fields(addKey)), mnemonics.English)
			if err != nil {
				die("could not parse --key as a mnemonic phrase:", err)
			}
			values.Set("key", hex.EncodeToString(entropy))
		}

		result, err := globalClient.Call("add", nil, values)
		if err != nil {
			die("add failed:", err)
		}
		fmt.Println("Added repo", result["uuid"])
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Stop and deregister a repo",
	Run: func(*cobra.Command, []string) {
		values := url.Values{}
		values.Set("uuid", removeUUID)
		if _, err := globalClient.Call("remove", nil, values); err != nil {
			die("remove failed:", err)
		}
		fmt.Println("Removed.")
	},
}

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Run a cross-repo dedup pass and print bytes saved",
	Run: func(*cobra.Command, []string) {
		pbs := mpb.New(mpb.WithWidth(40))
		bar := pbs.AddSpinner(
			-1,
			mpb.SpinnerOnLeft,
			mpb.SpinnerStyle([]string{"∙∙∙", "●∙∙", "∙●∙", "∙∙●", "∙∙∙"}),
			mpb.BarFillerClearOnComplete(),
			mpb.PrependDecorators(decor.Name("healing")),
		)
		result, err := globalClient.Call("heal", nil, nil)
		bar.Increment()
		pbs.Wait()
		if err != nil {
			die("heal failed:", err)
		}
		fmt.Printf("Healed %v bytes\n", result["bytes_healed"])
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Offer known chunks and request missing chunks from peers",
	Run: func(*cobra.Command, []string) {
		if _, err := globalClient.Call("fetch", nil, nil); err != nil {
			die("fetch failed:", err)
		}
		fmt.Println("Fetch round complete.")
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Tabular snapshot of every tracked repo",
	Run: func(*cobra.Command, []string) {
		result, err := globalClient.Call("list", nil, nil)
		if err != nil {
			die("list failed:", err)
		}
		repos, _ := result["repos"].([]interface{})
		fmt.Printf("%-36s  %-20s  %-8s  %s\n", "UUID", "NAME", "TYPE", "COMPLETE")
		var ratios []float64
		for _, entry := range repos {
			r, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			complete, _ := r["files_complete"].(float64)
			total, _ := r["files_total"].(float64)
			ratio := 0.0
			if total > 0 {
				ratio = complete / total * 100
			}
			ratios = append(ratios, ratio)
			fmt.Printf("%-36v  %-20v  %-8v  %.0f/%.0f (%.1f%%)\n",
				r["uuid"], r["name"], r["type"], complete, total, ratio)
		}
		if len(ratios) > 1 {
			median, _ := stats.Median(ratios)
			fmt.Printf("\nmedian completion across %d repos: %.1f%%\n", len(ratios), median)
		}
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "JSON snapshot of every tracked repo",
	Run: func(*cobra.Command, []string) {
		result, err := globalClient.Call("state", nil, nil)
		if err != nil {
			die("state failed:", err)
		}
		fmt.Println(result["repos"])
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop every tracked repo and exit the daemon's sync loops",
	Run: func(*cobra.Command, []string) {
		if _, err := globalClient.Call("quit", nil, nil); err != nil {
			die("quit failed:", err)
		}
		fmt.Println("Stopped.")
	},
}

func init() {
	createCmd.Flags().StringVar(&createChunkfile, "chunkfile", "", "path to write the manifest to")
	createCmd.Flags().StringVar(&createDirectory, "directory", "", "directory to chunk")
	createCmd.Flags().StringVar(&createName, "name", "", "repo name")
	createCmd.Flags().StringVar(&createType, "type", "static", "static or share")
	createCmd.Flags().StringVar(&createKey, "key", "", `"generate" for a new key, a mnemonic phrase to use an existing one, or omit for no encryption`)
	createCmd.Flags().BoolVar(&createAdd, "add", false, "register the repo as live after creating it")
	createCmd.MarkFlagRequired("chunkfile") //nolint:errcheck
	createCmd.MarkFlagRequired("directory") //nolint:errcheck

	addCmd.Flags().StringVar(&addChunkfile, "chunkfile", "", "path to an existing manifest")
	addCmd.Flags().StringVar(&addDirectory, "directory", "", "directory to track the manifest against")
	addCmd.Flags().StringVar(&addName, "name", "", "override the repo name")
	addCmd.Flags().StringVar(&addKey, "key", "", "mnemonic phrase for the repo key, if any")
	addCmd.MarkFlagRequired("chunkfile") //nolint:errcheck

	removeCmd.Flags().StringVar(&removeUUID, "uuid", "", "uuid of the repo to remove")
	removeCmd.MarkFlagRequired("uuid") //nolint:errcheck
}
