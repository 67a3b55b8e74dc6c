package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/callrecon/internal/call"
)

// wireRow accepts either a string or a number for the row index.
type wireRow struct {
	Text      string          `json:"text"`
	Contact   string          `json:"contact"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Index     json.RawMessage `json:"index"`
}

// DecodeSnapshot parses a snapshot document: either {"rows": [...]} or a
// bare array of rows.
func DecodeSnapshot(data []byte) ([]call.Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var wire []wireRow
	if data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	} else {
		var doc struct {
			Rows []wireRow `json:"rows"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		wire = doc.Rows
	}

	rows := make([]call.Row, 0, len(wire))
	for i, w := range wire {
		idx, err := indexString(w.Index)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: row %d: %w", i, err)
		}
		rows = append(rows, call.Row{
			Text:        w.Text,
			Contact:     w.Contact,
			Timestamp:   w.Timestamp,
			Type:        w.Type,
			SourceIndex: idx,
		})
	}
	return rows, nil
}

func indexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("index must be a string or number: %w", err)
	}
	return n.String(), nil
}
