package scenario

import (
	"fmt"
	"os"
	"strings"
)

// ExpandTemplates replaces template placeholders in a string:
//   - {{env.VARIABLE}} from environment variables
//   - {{variable_name}} from scenario variables and captured IDs
func ExpandTemplates(s string, vars map[string]string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression at position %d", len(s)-len(rest)+start)
		}
		end += start + 2

		value, err := resolveExpr(strings.TrimSpace(rest[start+2:end-2]), vars)
		if err != nil {
			return "", err
		}
		b.WriteString(rest[:start])
		b.WriteString(value)
		rest = rest[end:]
	}
	b.WriteString(rest)
	return b.String(), nil
}

func resolveExpr(expr string, vars map[string]string) (string, error) {
	if key, ok := strings.CutPrefix(expr, "env."); ok {
		return os.Getenv(key), nil
	}
	if val, ok := vars[expr]; ok {
		return val, nil
	}
	return "", fmt.Errorf("unresolved template expression: %q", expr)
}
