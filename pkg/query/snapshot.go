package query

import (
	"encoding/json"
	"fmt"
)

// Snapshot converts a typed state value into the flat map engines bind as
// variables. Maps pass through; everything else round-trips through its JSON
// representation, so the expression namespace follows the value's json tags.
func Snapshot(value any) (map[string]any, error) {
	if value == nil {
		return map[string]any{}, nil
	}
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("query: snapshot encode: %w", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("query: snapshot decode: %w", err)
	}
	return snapshot, nil
}
