package match

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/kit"
)

// RegisterMCP registers domtarget tools on an MCP server.
func (m *Matcher) RegisterMCP(srv *mcp.Server) {
	m.registerFindTool(srv)
	m.registerFindRoleTool(srv)
	m.registerBoundsTool(srv)
	m.registerRegisterTool(srv)
	m.registerClearContextTool(srv)
	m.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- find ---

type findRequest struct {
	ContextID   string `json:"context_id"`
	Description string `json:"description"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type findResponse struct {
	Matches []element.Match `json:"matches"`
	Count   int             `json:"count"`
}

func (m *Matcher) registerFindTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_find",
		Description: "Find elements in a browser context by natural-language description. Returns ranked matches with confidence scores.",
		InputSchema: inputSchema(map[string]any{
			"context_id":  map[string]any{"type": "string", "description": "Browser context (tab) ID"},
			"description": map[string]any{"type": "string", "description": "Natural-language element description, e.g. 'search box'"},
			"max_results": map[string]any{"type": "integer", "description": "Max matches to return (default 5)"},
		}, []string{"context_id", "description"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findRequest)
		matches := m.FindByDescription(ctx, r.ContextID, r.Description, r.MaxResults)
		return &findResponse{Matches: matches, Count: len(matches)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r findRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- find_role ---

type findRoleRequest struct {
	ContextID string `json:"context_id"`
	Role      string `json:"role"`
	TextHint  string `json:"text_hint,omitempty"`
}

func (m *Matcher) registerFindRoleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_find_role",
		Description: "Find elements by inferred role (search_input, submit_button, link, dropdown, ...), optionally ranked by a text hint.",
		InputSchema: inputSchema(map[string]any{
			"context_id": map[string]any{"type": "string", "description": "Browser context (tab) ID"},
			"role":       map[string]any{"type": "string", "description": "Role to match, e.g. search_input or button"},
			"text_hint":  map[string]any{"type": "string", "description": "Optional text to rank candidates by"},
		}, []string{"context_id", "role"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findRoleRequest)
		matches := m.FindByRole(ctx, r.ContextID, r.Role, r.TextHint)
		return &findResponse{Matches: matches, Count: len(matches)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r findRoleRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- bounds ---

type boundsRequest struct {
	ContextID string   `json:"context_id"`
	Selectors []string `json:"selectors"`
}

func (m *Matcher) registerBoundsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_bounds",
		Description: "Resolve CSS selectors to on-screen pixel bounds against the live DOM. Batch: unresolved selectors come back found=false with a reason.",
		InputSchema: inputSchema(map[string]any{
			"context_id": map[string]any{"type": "string", "description": "Browser context (tab) ID"},
			"selectors":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "CSS selectors to resolve"},
		}, []string{"context_id", "selectors"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*boundsRequest)
		return m.Bounds(ctx, r.ContextID, r.Selectors)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r boundsRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- register ---

type registerRequest struct {
	ContextID string              `json:"context_id"`
	Elements  []element.Semantics `json:"elements"`
}

func (m *Matcher) registerRegisterTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_register",
		Description: "Register scanned elements into a context. Upserts by selector; unknown contexts are created.",
		InputSchema: inputSchema(map[string]any{
			"context_id": map[string]any{"type": "string", "description": "Browser context (tab) ID"},
			"elements":   map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Element semantics records from a DOM scan"},
		}, []string{"context_id", "elements"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*registerRequest)
		for _, sem := range r.Elements {
			m.RegisterElement(r.ContextID, sem)
		}
		return map[string]any{
			"status":     "registered",
			"context_id": r.ContextID,
			"count":      len(r.Elements),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r registerRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- clear_context ---

func (m *Matcher) registerClearContextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_clear_context",
		Description: "Clear all registered elements and cached searches for a context. Call on navigation or tab close.",
		InputSchema: inputSchema(map[string]any{
			"context_id": map[string]any{"type": "string", "description": "Browser context (tab) ID to clear"},
		}, []string{"context_id"}),
	}

	type clearReq struct {
		ContextID string `json:"context_id"`
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*clearReq)
		m.ClearContext(r.ContextID)
		return map[string]string{"status": "cleared", "context_id": r.ContextID}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r clearReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (m *Matcher) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domtarget_stats",
		Description: "Get matcher statistics: element counts per context, cache entries, scorer runs.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return m.CurrentStats(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
