package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fetcharrd",
	Short: "Download queue and streaming backend for the fetcharr web UI",
	Long: `fetcharrd - download queue and streaming backend

Searches aniworld.to, s.to and movie4k.sx, resolves hoster stream
links, and drains a bounded-concurrency download queue. State is
exposed over a polling JSON API.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server daemon",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe(configPath)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: auto-discover)")
	rootCmd.AddCommand(serveCmd)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("fetcharrd {{.Version}}\n")
}
