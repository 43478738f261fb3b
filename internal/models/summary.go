package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Summary is the dataset summary produced by the summary service. Only the fields rendered by the summary
// view are decoded; Raw keeps the complete payload for download.
type Summary struct {
	Shape         json.RawMessage `json:"shape,omitempty"`
	ImportantCols []string        `json:"important_cols,omitempty"`
	Summary       string          `json:"Summary"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the summary fields and keeps a copy of data in Raw.
func (s *Summary) UnmarshalJSON(data []byte) error {
	type summary Summary
	var v summary
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Summary(v)
	s.Raw = bytes.Clone(data)
	return nil
}

// Records renders the dataset shape for display. A [rows, columns] pair is spelled out, other shapes are
// shown as they are, and a missing shape is "N/A".
func (s Summary) Records() string {
	raw := bytes.TrimSpace(s.Shape)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "N/A"
	}

	var dims []json.Number
	if err := json.Unmarshal(raw, &dims); err == nil {
		switch len(dims) {
		case 0:
			return "N/A"
		case 2:
			return fmt.Sprintf("%s rows × %s columns", dims[0], dims[1])
		}
		parts := make([]string, len(dims))
		for i, d := range dims {
			parts[i] = d.String()
		}
		return strings.Join(parts, " × ")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if str == "" {
			return "N/A"
		}
		return str
	}

	return string(raw)
}
