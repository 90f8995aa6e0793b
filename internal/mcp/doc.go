// Package mcp implements the Model Context Protocol (MCP) server for Lorekeeper.
//
// The MCP server exposes five tools to assistants running a tabletop campaign:
//   - search_knowledge: Rank a campaign's NPCs, locations, monsters and quests
//   - list_campaign_items: Read a campaign's live detail item list
//   - list_session_messages: Read the live transcript of a play session
//   - post_session_message: Append an entry to a session transcript
//   - get_status: Report strategies, drivers and live watch state
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is typically started via the serve command:
//
//	lorekeeper serve
//
// # Tool: search_knowledge
//
//	Request:
//	{
//	  "name": "search_knowledge",
//	  "arguments": {
//	    "campaign_id": "c1",
//	    "query": "evil",
//	    "category": "NPCs",
//	    "strategy": "hybrid",
//	    "limit": 10
//	  }
//	}
//
// An empty query lists the campaign in the requested sort order. The first
// search of a campaign starts a live watch so later results stay current
// with edits made elsewhere.
//
// # Tool: list_session_messages
//
// The first call for a session starts a watch and waits up to
// DefaultSyncTimeout for the transcript to seed. Later calls read the
// cached transcript, which the watch keeps ordered oldest first.
//
// # Error Handling
//
// Tools return MCPError values with JSON-RPC codes:
//   - -32602: Invalid parameters (missing campaign_id, bad sort, limit out of range)
//   - -32603: Internal error (store unavailable)
//   - -32001: Both the enhanced and the basic search failed
//   - -32002: A session or campaign watch did not seed before the timeout
package mcp
