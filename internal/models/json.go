package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a free-form object stored in a json column.
type JSON map[string]interface{}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(raw, j)
}

// Clone returns a deep copy so callers can mutate freely.
func (j JSON) Clone() JSON {
	if j == nil {
		return nil
	}
	out := make(JSON, len(j))
	for k, v := range j {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(JSON(typed).Clone())
	case JSON:
		return map[string]interface{}(typed.Clone())
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MergeInto deep merges patch into j. Nested objects are merged, everything else replaced.
func (j JSON) MergeInto(patch JSON) JSON {
	out := j.Clone()
	if out == nil {
		out = make(JSON, len(patch))
	}
	for k, v := range patch {
		incoming, ok := asObject(v)
		if !ok {
			out[k] = cloneValue(v)
			continue
		}
		existing, ok := asObject(out[k])
		if !ok {
			out[k] = map[string]interface{}(incoming.Clone())
			continue
		}
		out[k] = map[string]interface{}(existing.MergeInto(incoming))
	}
	return out
}

func asObject(v interface{}) (JSON, bool) {
	switch typed := v.(type) {
	case map[string]interface{}:
		return JSON(typed), true
	case JSON:
		return typed, true
	default:
		return nil, false
	}
}
