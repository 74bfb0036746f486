package deck

import (
	_ "embed"
	"fmt"
	"strconv"
)

// extractScript is evaluated with [container, cursor|null, kind] and returns
// new item ids, freshest first.
//
//go:embed extract.js
var extractScript string

// extractArgs builds the script arguments for c.
func extractArgs(c *Column) []any {
	var cursor any
	if cur := c.Cursor(); cur != "" {
		cursor = cur
	}
	return []any{c.Element, cursor, c.Kind.ScriptName()}
}

// parseIDs converts the script's return value into ids.
func parseIDs(v any) ([]string, error) {
	switch ids := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return ids, nil
	case []any:
		out := make([]string, 0, len(ids))
		for i, raw := range ids {
			switch id := raw.(type) {
			case string:
				out = append(out, id)
			case float64:
				out = append(out, strconv.FormatFloat(id, 'f', -1, 64))
			case int:
				out = append(out, strconv.Itoa(id))
			case int64:
				out = append(out, strconv.FormatInt(id, 10))
			default:
				return nil, fmt.Errorf("id %d has unexpected type %T", i, raw)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("extraction returned %T, want a list of ids", v)
	}
}
