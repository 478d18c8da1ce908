package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cfgFile is the explicit config path. Empty means discovery.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tiefsee",
	Short: "tiefsee - OpenAI-compatible gateway for DeepSeek chat",
	Long: `tiefsee adapts the DeepSeek web chat backend into the OpenAI Chat
Completions API. It manages the upstream session tokens, serializes requests
per token, and translates the upstream event stream into chat.completion
chunks.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: TIEFSEE_CONFIG, ./config.yaml, /etc/tiefsee/config.yaml)")
}
