package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	profile    string
)

var rootCmd = &cobra.Command{
	Use:   "operator",
	Short: "Run browser tests written in plain language",
	Long: `operator turns plain-language instructions into Gherkin steps, asks a
language model for Playwright commands on each page, and executes them in a
real browser with retries and strict-mode fallbacks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "browser preset: default, debug, test, production or mobile")

	rootCmd.SetVersionTemplate(`{{printf "operator version %s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSuiteCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
}
