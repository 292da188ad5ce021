package cmd

import (
	"github.com/khaes-kth/drr-execdiff/internal/ledger"
	"github.com/khaes-kth/drr-execdiff/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the execdiff MCP server",
	Long:  `Launch an MCP server over stdio that lets AI agents compute depth reports, list the comparable corpus and inspect the ledger.`,
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Headers and logs go to stderr; stdio carries the protocol.
		return sharedSetup(rootCtx, cmd, args)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, ledger.Manager)
	},
}
