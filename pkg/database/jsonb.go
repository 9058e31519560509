package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB scans a Postgres jsonb column into a typed value.
type JSONB[T any] struct {
	Val T
}

func (p *JSONB[T]) Scan(src any) error {
	if src == nil {
		var zero T
		p.Val = zero
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &p.Val)
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Val)
}

func (p *JSONB[T]) GetValue() T {
	return p.Val
}
