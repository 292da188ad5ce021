package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/khaes-kth/drr-execdiff/core"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.LedgerManager
}

// layoutConfig applies the root/depths/reference_depth overrides of a request
// to a copy of the base config.
func (h *toolHandler) layoutConfig(request mcp.CallToolRequest) (*contract.Config, error) {
	cfg := h.baseCfg.Clone()
	if r := request.GetString("root", ""); r != "" {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", r, err)
		}
		cfg.Root = abs
	}

	depthsSet := false
	if n := request.GetInt("depths", 0); n != 0 {
		if n < 0 {
			return nil, fmt.Errorf("depths must be greater than 0 (received %d)", n)
		}
		cfg.Depths = n
		depthsSet = true
	}
	switch ref := request.GetInt("reference_depth", -1); {
	case ref >= 0:
		cfg.ReferenceDepth = schema.Depth(ref)
	case depthsSet:
		cfg.ReferenceDepth = schema.Depth(cfg.Depths - 1)
	}
	if int(cfg.ReferenceDepth) >= cfg.Depths {
		return nil, fmt.Errorf("reference_depth %d is outside [0, %d)", cfg.ReferenceDepth, cfg.Depths)
	}
	return cfg, nil
}

func (h *toolHandler) handleGetDepthReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.layoutConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report parameters: %v", err)), nil
	}

	report, err := core.GetReportResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("report failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleGetComparableCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.layoutConfig(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid corpus parameters: %v", err)), nil
	}

	listing, err := core.GetCorpusResults(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("corpus resolution failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(listing, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleGetLedgerStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := core.GetLedgerStatus(h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ledger status failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(status, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}
