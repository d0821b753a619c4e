package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// docsSearchTool returns the tool definition for docs_search
func docsSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "docs_search",
		Description: "Search a library's documentation. Indexes the library on first use, then serves hybrid lexical+semantic results.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"library": map[string]interface{}{
					"type":        "string",
					"description": "Library or package name (e.g. 'react', 'requests', 'tokio')",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Optional ecosystem hint to disambiguate name collisions (e.g. 'python', 'javascript', 'rust')",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "Optional version hint; the response notes when the indexed version differs",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query", "library"},
		},
	}
}

// docsInvalidateTool returns the tool definition for docs_invalidate
func docsInvalidateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "docs_invalidate",
		Description: "Drop a library's documentation index so the next search rebuilds it from scratch",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"library": map[string]interface{}{
					"type":        "string",
					"description": "Library or package name",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Optional ecosystem hint, must match the one used when searching",
				},
			},
			Required: []string{"library"},
		},
	}
}

// docsStatusTool returns the tool definition for docs_status
func docsStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "docs_status",
		Description: "Report indexed libraries and overall index health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
