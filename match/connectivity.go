package match

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domtarget/connectivity"
)

// RegisterConnectivity registers matcher service handlers on a connectivity
// Router.
//
// Registered services:
//
//	domtarget_find     — description search
//	domtarget_bounds   — batch selector-to-bounds resolution
//	domtarget_register — scanner element push
//	domtarget_clear    — context clear
//	domtarget_stats    — matcher statistics
func (m *Matcher) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("domtarget_find", m.handleFind)
	router.RegisterLocal("domtarget_bounds", m.handleBounds)
	router.RegisterLocal("domtarget_register", m.handleRegister)
	router.RegisterLocal("domtarget_clear", m.handleClear)
	router.RegisterLocal("domtarget_stats", m.handleStats)
}

func (m *Matcher) handleFind(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		ContextID   string `json:"context_id"`
		Description string `json:"description"`
		Role        string `json:"role"`
		TextHint    string `json:"text_hint"`
		MaxResults  int    `json:"max_results"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if req.Role != "" {
		matches := m.FindByRole(ctx, req.ContextID, req.Role, req.TextHint)
		return json.Marshal(&findResponse{Matches: matches, Count: len(matches)})
	}
	if req.Description == "" {
		return nil, fmt.Errorf("description or role required")
	}
	matches := m.FindByDescription(ctx, req.ContextID, req.Description, req.MaxResults)
	return json.Marshal(&findResponse{Matches: matches, Count: len(matches)})
}

func (m *Matcher) handleBounds(ctx context.Context, payload []byte) ([]byte, error) {
	var req boundsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	batch, err := m.Bounds(ctx, req.ContextID, req.Selectors)
	if err != nil {
		return nil, err
	}
	return json.Marshal(batch)
}

func (m *Matcher) handleRegister(_ context.Context, payload []byte) ([]byte, error) {
	var req registerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for _, sem := range req.Elements {
		m.RegisterElement(req.ContextID, sem)
	}
	return json.Marshal(map[string]any{
		"status":     "registered",
		"context_id": req.ContextID,
		"count":      len(req.Elements),
	})
}

func (m *Matcher) handleClear(_ context.Context, payload []byte) ([]byte, error) {
	var req struct {
		ContextID string `json:"context_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	m.ClearContext(req.ContextID)
	return json.Marshal(map[string]string{"status": "cleared", "context_id": req.ContextID})
}

func (m *Matcher) handleStats(_ context.Context, _ []byte) ([]byte, error) {
	return json.Marshal(m.CurrentStats())
}
