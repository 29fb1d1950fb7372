package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// LoadFile reads raw records from a JSON file. See Load for the accepted layouts.
func LoadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	records, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return records, nil
}

// Load reads raw records in one of three layouts:
//
//	{"<alias>": [item, ...], ...}        items grouped by listing alias
//	[item, ...]                          a plain item array
//	{"body": {"items": [item, ...]}}     a raw API response envelope
//
// Alias groups are returned in file order.
func Load(r io.Reader) ([]RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '[':
		return loadArray(data, "")
	case '{':
		if records, ok, err := loadEnvelope(data); ok || err != nil {
			return records, err
		}
		return loadAliasGroups(data)
	default:
		return nil, errors.New("source must be a JSON object or array")
	}
}

func loadArray(data []byte, alias string) ([]RawRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode item array: %w", err)
	}
	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RawRecord{Alias: alias, Data: item})
	}
	return records, nil
}

func loadEnvelope(data []byte) ([]RawRecord, bool, error) {
	var envelope struct {
		Body *struct {
			Items json.RawMessage `json:"items"`
		} `json:"body"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false, fmt.Errorf("failed to decode source object: %w", err)
	}
	if envelope.Body == nil || len(envelope.Body.Items) == 0 {
		return nil, false, nil
	}

	items := bytes.TrimSpace(envelope.Body.Items)
	if len(items) > 0 && items[0] == '{' {
		// Some API versions nest the list one level deeper: {"items": {"item": [...]}}.
		var nested struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(items, &nested); err != nil {
			return nil, true, fmt.Errorf("failed to decode envelope items: %w", err)
		}
		items = bytes.TrimSpace(nested.Item)
		if len(items) > 0 && items[0] == '{' {
			return []RawRecord{{Data: items}}, true, nil
		}
	}
	if len(items) == 0 || bytes.Equal(items, []byte("null")) {
		return nil, true, nil
	}
	records, err := loadArray(items, "")
	return records, true, err
}

func loadAliasGroups(data []byte) ([]RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode alias groups: %w", err)
	}

	var records []RawRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode alias key: %w", err)
		}
		alias, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var group json.RawMessage
		if err := dec.Decode(&group); err != nil {
			return nil, fmt.Errorf("failed to decode items for alias %q: %w", alias, err)
		}
		group = bytes.TrimSpace(group)
		switch {
		case len(group) > 0 && group[0] == '[':
			items, err := loadArray(group, alias)
			if err != nil {
				return nil, fmt.Errorf("alias %q: %w", alias, err)
			}
			records = append(records, items...)
		case len(group) > 0 && group[0] == '{':
			records = append(records, RawRecord{Alias: alias, Data: group})
		}
	}
	return records, nil
}
