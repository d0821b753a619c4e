// Package mcp implements the Model Context Protocol server for wet-mcp.
//
// The server exposes three tools to AI coding assistants over stdio:
//   - docs_search: search a library's documentation, indexing it on first use
//   - docs_invalidate: drop a library's index so the next search rebuilds it
//   - docs_status: report indexed libraries and index health
//
// # Tool: docs_search
//
//	Request:
//	{
//	  "name": "docs_search",
//	  "arguments": {
//	    "query": "useEffect cleanup",
//	    "library": "react",
//	    "language": "javascript",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "library": "react:javascript",
//	  "lexical_only": false,
//	  "reranked": true,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "relevance_score": 0.92,
//	      "title": "Synchronizing with Effects",
//	      "heading_path": "Hooks > useEffect > Cleanup",
//	      "content": "...",
//	      "url": "https://react.dev/learn/synchronizing-with-effects"
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Tool failures map onto JSON-RPC error codes:
//   - -32602: invalid params (missing or malformed arguments)
//   - -32001: no documentation source found for the library
//   - -32002: documentation source could not be fetched
//   - -32003: embedding or rerank backend failed
//   - -32004: operation exceeded its time budget
//   - -32005: index storage failure
//   - -32603: any other internal error
//
// Logging goes to stderr; stdout is reserved for the protocol stream.
package mcp
