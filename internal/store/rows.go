package store

import (
	"encoding/json"
	"fmt"
)

// Decode converts a row into v, which must be a pointer to a struct with
// json tags matching the table's columns.
func Decode(row Row, v any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// Encode converts v into a row, dropping the given columns. Stores assign
// ids and timestamps themselves, so writes usually omit them.
func Encode(v any, omit ...string) (Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	for _, c := range omit {
		delete(row, c)
	}
	return row, nil
}

// ID returns the row's id column as a string.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}
