package mcp

// getStringArg pulls a string argument, returning "" when absent or mistyped.
func getStringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// getIntArg pulls an integer argument. JSON numbers arrive as float64.
func getIntArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// getBoolArg pulls a boolean argument, returning def when absent or mistyped.
func getBoolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
