// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the execdiff MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.LedgerManager) *server.MCPServer {
	s := server.NewMCPServer(
		"execdiff Experiment Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: get_depth_report ---
	s.AddTool(mcp.NewTool("get_depth_report",
		mcp.WithDescription("Aggregate exec-diff artifacts into per-depth counts and timings averaged over the comparable corpus."),
		mcp.WithString("root", mcp.Description("Experiment root holding the exec-diff<D> directories (defaults to the configured root).")),
		mcp.WithNumber("depths", mcp.Description("Number of depths to aggregate.")),
		mcp.WithNumber("reference_depth", mcp.Description("Depth whose state diffs seed the comparable corpus.")),
	), h.handleGetDepthReport)

	// --- 2. Tool: get_comparable_corpus ---
	s.AddTool(mcp.NewTool("get_comparable_corpus",
		mcp.WithDescription("List the commits that have a state diff at every depth."),
		mcp.WithString("root", mcp.Description("Experiment root holding the exec-diff<D> directories.")),
		mcp.WithNumber("depths", mcp.Description("Number of depths to intersect.")),
		mcp.WithNumber("reference_depth", mcp.Description("Depth whose state diffs seed the corpus.")),
	), h.handleGetComparableCorpus)

	// --- 3. Tool: get_ledger_status ---
	s.AddTool(mcp.NewTool("get_ledger_status",
		mcp.WithDescription("Summarize the execution ledger: batches, run outcomes and table sizes."),
	), h.handleGetLedgerStatus)

	return s
}

// StartMCPServer starts the execdiff MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.LedgerManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
