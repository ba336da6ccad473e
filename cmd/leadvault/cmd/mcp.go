package cmd

import (
	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/leadvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets any MCP client browse lead forms with the list_accounts,
list_pages, list_forms, and list_leads tools. The tools are read-only
and go through the same backend as the dashboard.

Add to an MCP client config:
  {
    "mcpServers": {
      "leadvault": {
        "command": "leadvault",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, release, err := openBackend()
		if err != nil {
			return err
		}
		defer release()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return mcpserver.Serve(cmd.Context(), backend, mcpserver.Options{
			Version:  Version,
			Location: loc,
			MaxLeads: cfg.Leads.MaxLeads,
			PageSize: cfg.Leads.PageSize,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
