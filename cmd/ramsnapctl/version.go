package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ramsnap/ram/index"
	"github.com/joshuapare/ramsnap/ram/watch"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type versionResult struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	Built        string `json:"built"`
	IndexVersion int32  `json:"index_version"`
	Platform     string `json:"platform"`
	LazyRestore  bool   `json:"lazy_restore"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	res := versionResult{
		Version:      version,
		Commit:       commit,
		Built:        date,
		IndexVersion: index.Version,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		LazyRestore:  watch.NewProtect(watch.ProtectOptions{}).Supported(),
	}
	if jsonOut {
		return printJSON(res)
	}

	fmt.Printf("ramsnapctl %s\n", res.Version)
	fmt.Printf("  commit: %s\n", res.Commit)
	fmt.Printf("  built: %s\n", res.Built)
	fmt.Printf("  snapshot index: v%d\n", res.IndexVersion)
	lazy := "unavailable"
	if res.LazyRestore {
		lazy = "mprotect"
	}
	fmt.Printf("  lazy restore: %s (%s)\n", lazy, res.Platform)
	return nil
}
