// Package mapper turns raw imported rows into mapped building
// snapshots using the organization's column mappings.
package mapper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType is the canonical type of a mapped field.
type ValueType int

const (
	TypeString ValueType = iota
	TypeFloat
	TypeInt
	TypeDate
)

// Schema maps canonical field names to their value types. Unknown
// fields are rejected at cleaner construction, not at row time.
type Schema map[string]ValueType

// BuildingSchema is the canonical snapshot field schema.
var BuildingSchema = Schema{
	"pm_property_id":   TypeString,
	"tax_lot_id":       TypeString,
	"custom_id_1":      TypeString,
	"address_line_1":   TypeString,
	"address_line_2":   TypeString,
	"city":             TypeString,
	"state_province":   TypeString,
	"postal_code":      TypeString,
	"property_name":    TypeString,
	"year_built":       TypeInt,
	"gross_floor_area": TypeFloat,
}

// leadingNumber pulls the numeric portion off values like "1,000 ft2"
// or "245,000.5 kBtu" that Portfolio Manager exports embed units in.
var leadingNumber = regexp.MustCompile(`^[\s]*(-?[\d,]+(?:\.\d+)?)`)

var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// Cleaner converts raw cell strings to typed values per the schema.
type Cleaner struct {
	schema Schema
}

// NewCleaner creates a cleaner for a schema. Every field referenced by
// a column mapping must exist in the schema.
func NewCleaner(schema Schema) *Cleaner {
	return &Cleaner{schema: schema}
}

// HasField reports whether the schema knows the field.
func (c *Cleaner) HasField(field string) bool {
	_, ok := c.schema[field]
	return ok
}

// Clean converts one raw cell to the field's typed value. Empty cells
// clean to nil. Unparseable numerics are an error so a bad file fails
// loudly instead of importing zeros.
func (c *Cleaner) Clean(field, raw string) (any, error) {
	valueType, ok := c.schema[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	switch valueType {
	case TypeString:
		return raw, nil
	case TypeFloat:
		number, err := parseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return number, nil
	case TypeInt:
		number, err := parseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return int(number), nil
	case TypeDate:
		for _, format := range dateFormats {
			if parsed, err := time.Parse(format, raw); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("field %q: unparseable date %q", field, raw)
	}
	return nil, fmt.Errorf("field %q: unsupported value type", field)
}

func parseNumber(raw string) (float64, error) {
	match := leadingNumber.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("unparseable number %q", raw)
	}
	cleaned := strings.ReplaceAll(match[1], ",", "")
	return strconv.ParseFloat(cleaned, 64)
}
