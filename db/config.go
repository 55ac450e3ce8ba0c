package db

import (
	"context"
	"encoding/json"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// GetConfig returns the whole config table as a key/value map. Values that
// parse as JSON come back decoded; anything else stays a raw string.
func (d *DB) GetConfig(ctx context.Context) (map[string]any, error) {
	sb := sqlbuilder.NewSelectBuilder()
	query, args := sb.Select("key", "value").From("config").Build()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	config := map[string]any{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			config[key] = decoded
		} else {
			config[key] = value
		}
	}
	return config, rows.Err()
}

func (d *DB) SetConfig(ctx context.Context, key string, value any) error {
	encoded, ok := value.(string)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
		encoded = string(raw)
	}

	if _, err := d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, encoded); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}
