package main

import (
	"github.com/spf13/cobra"

	"github.com/rahul/operator/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the runner as MCP tools over stdio",
		Long: `Starts an MCP server on stdin and stdout so an AI assistant can run
cases and read their results. Logs go to stderr and the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcpserver.New("operator", rootCmd.Version, a.cases, a.store).Start()
		},
	}
}
