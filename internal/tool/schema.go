package tool

// InputSchema returns the JSON schema of a tool call.
func InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        Operations(),
				"description": "Operation to perform",
			},
			"params": map[string]any{
				"type": "object",
				"description": "Parameters for the operation. Use issue_id to identify issues; " +
					"blocked_id and blocker_id for add_dependency. priority accepts 0-4 or " +
					"critical, high, medium, normal, low, deferred.",
				"properties": map[string]any{
					"issue_id":        map[string]any{"type": "string"},
					"title":           map[string]any{"type": "string"},
					"description":     map[string]any{"type": "string"},
					"priority":        map[string]any{"type": []string{"integer", "string"}},
					"issue_type":      map[string]any{"type": "string"},
					"assignee":        map[string]any{"type": "string"},
					"parent_id":       map[string]any{"type": "string"},
					"discovered_from": map[string]any{"type": "string"},
					"metadata":        map[string]any{"type": "object"},
					"status":          map[string]any{"type": "string", "enum": []string{"open", "closed"}},
					"reason":          map[string]any{"type": "string"},
					"blocked_id":      map[string]any{"type": "string"},
					"blocker_id":      map[string]any{"type": "string"},
					"limit":           map[string]any{"type": "integer", "minimum": 0},
					"actor":           map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"operation"},
	}
}
