package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchKnowledgeTool returns the tool definition for search_knowledge
func searchKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search a campaign's knowledge catalog (NPCs, locations, monsters, quests, mysteries, items)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"campaign_id": map[string]interface{}{
					"type":        "string",
					"description": "Campaign to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text query. Empty lists the campaign in the requested sort order",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Category filter label",
					"enum":        []string{"All", "NPCs", "Locations", "Monsters", "Quests", "Mysteries", "Items"},
					"default":     "All",
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: exact (full-text), trigram (word similarity), vector, or hybrid (trigram + vector). Unknown names fall back to exact",
					"enum":        []string{"exact", "trigram", "vector", "hybrid"},
					"default":     "hybrid",
				},
				"similarity_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum word similarity for trigram matches (0.1-1.0)",
					"minimum":     0.1,
					"maximum":     1.0,
				},
				"sort": map[string]interface{}{
					"type":        "string",
					"description": "Result ordering",
					"enum":        []string{"relevance", "created_at", "name", "updated_at"},
					"default":     "relevance",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"description": "Sort direction for non-relevance orderings",
					"enum":        []string{"asc", "desc"},
					"default":     "desc",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"campaign_id"},
		},
	}
}

// listSessionMessagesTool returns the tool definition for list_session_messages
func listSessionMessagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_session_messages",
		Description: "Return the live transcript of a session, oldest first, with author names",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session whose transcript to return",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// listCampaignItemsTool returns the tool definition for list_campaign_items
func listCampaignItemsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_campaign_items",
		Description: "Return a campaign's live detail item list, newest first. Deleted items are flagged while the retain policy keeps them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"campaign_id": map[string]interface{}{
					"type":        "string",
					"description": "Campaign whose items to return",
				},
			},
			Required: []string{"campaign_id"},
		},
	}
}

// postSessionMessageTool returns the tool definition for post_session_message
func postSessionMessageTool() mcp.Tool {
	return mcp.Tool{
		Name:        "post_session_message",
		Description: "Append a log entry to a session transcript",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to append to",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Author of the entry",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Entry text",
				},
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Entry kind",
					"enum":        []string{"text", "action", "system"},
					"default":     "text",
				},
			},
			Required: []string{"session_id", "user_id", "content"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report search strategies, store and feed drivers, and the state of live watches",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
