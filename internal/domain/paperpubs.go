package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PaperPubs is the postal address used for paper publications.
type PaperPubs struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Country string `json:"country"`
}

// CleanPaperPubs normalizes a raw paper publications value.
//
// A nil, empty or JSON null value cleans to nil. Objects (or JSON strings holding an
// object) must carry non-empty name, address and country; any other keys are dropped.
func CleanPaperPubs(raw json.RawMessage) (*PaperPubs, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "false" || s == `""` {
		return nil, nil
	}
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
		return CleanPaperPubs(json.RawMessage(inner))
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("expected an object")
	}
	out := PaperPubs{}
	var missing []string
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"name", &out.Name},
		{"address", &out.Address},
		{"country", &out.Country},
	} {
		v, _ := fields[f.key].(string)
		v = strings.TrimSpace(v)
		if v == "" {
			missing = append(missing, f.key)
			continue
		}
		*f.dst = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required field(s) missing: %s", strings.Join(missing, ", "))
	}
	return &out, nil
}
