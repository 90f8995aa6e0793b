package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/lorekeeper/internal/catalog"
	"github.com/dshills/lorekeeper/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeFetchFailed   = -32001 // Both search tiers failed
	ErrorCodeSyncTimeout   = -32002 // A live watch did not seed in time
)

// handleSearchKnowledge handles the search_knowledge tool invocation
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	campaignID, ok := args["campaign_id"].(string)
	if !ok || strings.TrimSpace(campaignID) == "" {
		return nil, missingParam("campaign_id")
	}

	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	sortKey := types.SortKey(getStringDefault(args, "sort", string(types.SortRelevance)))
	switch sortKey {
	case types.SortRelevance, types.SortCreatedAt, types.SortName, types.SortUpdatedAt:
	default:
		return nil, invalidEnum("sort", string(sortKey), []string{"relevance", "created_at", "name", "updated_at"})
	}

	order := types.SortOrder(getStringDefault(args, "order", string(types.SortDesc)))
	if order != types.SortAsc && order != types.SortDesc {
		return nil, invalidEnum("order", string(order), []string{"asc", "desc"})
	}

	filters := types.SearchFilters{
		QueryText:           getStringDefault(args, "query", ""),
		Category:            getStringDefault(args, "category", "All"),
		SortKey:             sortKey,
		SortOrder:           order,
		Strategy:            types.StrategyName(getStringDefault(args, "strategy", "")),
		SimilarityThreshold: getFloatDefault(args, "similarity_threshold", 0),
	}

	// Keep cached results for this campaign current
	if _, err := s.app.WatchCampaign(campaignID); err != nil {
		s.log.Warn().Err(err).Str("campaign_id", campaignID).Msg("failed to start campaign watch")
	}

	results, err := s.app.Search(ctx, campaignID, filters)
	if err != nil {
		code := ErrorCodeInternalError
		if errors.Is(err, catalog.ErrFetchFailed) {
			code = ErrorCodeFetchFailed
		}
		return nil, newMCPError(code, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}

	items := make([]map[string]interface{}, len(results))
	for i, r := range results {
		items[i] = formatResult(r)
	}

	response := map[string]interface{}{
		"campaign_id": campaignID,
		"query":       filters.QueryText,
		"total":       total,
		"results":     items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListSessionMessages handles the list_session_messages tool invocation
func (s *Server) handleListSessionMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, ok := args["session_id"].(string)
	if !ok || strings.TrimSpace(sessionID) == "" {
		return nil, missingParam("session_id")
	}

	w, err := s.app.WatchSession(sessionID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to watch session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.waitReady(ctx, w.Ready()); err != nil {
		return nil, syncTimeout("session_id", sessionID, w.State().String(), err)
	}

	msgs := s.app.Messages.Get(sessionID)
	formatted := make([]map[string]interface{}, len(msgs))
	for i, m := range msgs {
		formatted[i] = formatMessage(m)
	}

	response := map[string]interface{}{
		"session_id": sessionID,
		"state":      w.State().String(),
		"count":      len(msgs),
		"messages":   formatted,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListCampaignItems handles the list_campaign_items tool invocation
func (s *Server) handleListCampaignItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	campaignID, ok := args["campaign_id"].(string)
	if !ok || strings.TrimSpace(campaignID) == "" {
		return nil, missingParam("campaign_id")
	}

	w, err := s.app.WatchCampaign(campaignID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to watch campaign", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := s.waitReady(ctx, w.Ready()); err != nil {
		return nil, syncTimeout("campaign_id", campaignID, w.State().String(), err)
	}

	items := s.app.CampaignItems(campaignID)
	formatted := make([]map[string]interface{}, len(items))
	for i, item := range items {
		formatted[i] = formatResult(types.SearchResult{DetailItem: item})
		delete(formatted[i], "relevance_score")
		formatted[i]["deleted"] = s.app.Tombstoned(campaignID, item.ID)
	}

	response := map[string]interface{}{
		"campaign_id": campaignID,
		"state":       w.State().String(),
		"count":       len(items),
		"items":       formatted,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePostSessionMessage handles the post_session_message tool invocation
func (s *Server) handlePostSessionMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, ok := args["session_id"].(string)
	if !ok || strings.TrimSpace(sessionID) == "" {
		return nil, missingParam("session_id")
	}
	userID, ok := args["user_id"].(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return nil, missingParam("user_id")
	}
	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, missingParam("content")
	}

	msgType := types.MessageType(getStringDefault(args, "type", string(types.MessageText)))
	if !msgType.Valid() {
		return nil, invalidEnum("type", string(msgType), []string{"text", "action", "system"})
	}

	msg, err := s.app.PostMessage(ctx, sessionID, userID, content, msgType)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to post message", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"posted":  true,
		"message": formatMessage(msg),
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health := map[string]interface{}{"store_accessible": true}
	if err := s.app.Store.Ping(ctx); err != nil {
		health["store_accessible"] = false
		health["error"] = err.Error()
	}

	response := map[string]interface{}{
		"status": s.app.Status(),
		"health": health,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// waitReady blocks until a new watch has seeded its list
func (s *Server) waitReady(ctx context.Context, ready <-chan struct{}) error {
	timer := time.NewTimer(s.syncTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errSyncTimeout
	}
}

var errSyncTimeout = errors.New("watch did not seed in time")

func syncTimeout(param, id, state string, err error) error {
	if !errors.Is(err, errSyncTimeout) {
		return err
	}
	return newMCPError(ErrorCodeSyncTimeout, "live list not available yet", map[string]interface{}{
		param:   id,
		"state": state,
	})
}

// formatResult flattens a search result for the tool response
func formatResult(r types.SearchResult) map[string]interface{} {
	out := map[string]interface{}{
		"id":              r.ID,
		"name":            r.Name,
		"slug":            r.Slug,
		"category":        r.Category,
		"is_ai_generated": r.IsAIGenerated,
		"created_at":      r.CreatedAt.Format(time.RFC3339),
		"relevance_score": r.RelevanceScore,
	}
	if r.Strategy != "" {
		out["strategy"] = r.Strategy
	}
	if r.Description != nil {
		out["description"] = *r.Description
	}
	if r.Similarity != nil {
		out["similarity"] = *r.Similarity
	}
	if len(r.Metadata) > 0 {
		out["metadata"] = r.Metadata
	}
	return out
}

// formatMessage flattens a session message for the tool response
func formatMessage(m types.SessionMessage) map[string]interface{} {
	out := map[string]interface{}{
		"id":         m.ID,
		"user_id":    m.UserID,
		"author":     m.Author.DisplayName,
		"content":    m.Content,
		"type":       m.Type,
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.Author.AvatarURL != nil {
		out["avatar_url"] = *m.Author.AvatarURL
	}
	return out
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

func invalidEnum(name, value string, allowed []string) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+name, map[string]interface{}{
		"param":   name,
		"value":   value,
		"allowed": allowed,
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
