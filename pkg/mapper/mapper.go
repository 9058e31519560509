package mapper

import (
	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
)

// Mapper applies an organization's column mappings to raw rows.
type Mapper struct {
	cleaner  *Cleaner
	mappings map[string]*models.Column
}

// New builds a mapper from the organization's column mappings. Columns
// whose mapped name is unknown to the schema are treated as unmapped
// and flow to extra data.
func New(cleaner *Cleaner, mappings []*models.Column) *Mapper {
	byRawName := make(map[string]*models.Column, len(mappings))
	for _, mapping := range mappings {
		if cleaner.HasField(mapping.MappedName) {
			byRawName[mapping.RawColumnName] = mapping
		}
	}
	return &Mapper{
		cleaner:  cleaner,
		mappings: byRawName,
	}
}

// MapRow converts one raw snapshot into its mapped form. Mapped cells
// land in canonical fields; everything else is preserved in extra
// data under the raw header name.
func (m *Mapper) MapRow(raw *models.BuildingSnapshot) (*models.BuildingSnapshot, error) {
	mapped := &models.BuildingSnapshot{
		OrgID:        raw.OrgID,
		ImportFileID: raw.ImportFileID,
		SourceType:   raw.SourceType.MappedType(),
		Parent1ID:    &raw.ID,
	}

	extra := make(map[string]any)
	for header, value := range raw.ExtraData.Val {
		mapping, ok := m.mappings[header]
		if !ok {
			extra[header] = value
			continue
		}

		cell, ok := value.(string)
		if !ok {
			extra[header] = value
			continue
		}

		cleaned, err := m.cleaner.Clean(mapping.MappedName, cell)
		if err != nil {
			return nil, err
		}
		if cleaned == nil {
			continue
		}
		applyField(mapped, mapping.MappedName, cleaned)
	}

	if len(extra) > 0 {
		mapped.ExtraData = database.JSONB[map[string]any]{Val: extra}
	}
	return mapped, nil
}

func applyField(snapshot *models.BuildingSnapshot, field string, value any) {
	switch field {
	case "pm_property_id":
		snapshot.PMPropertyID, _ = value.(string)
	case "tax_lot_id":
		snapshot.TaxLotID, _ = value.(string)
	case "custom_id_1":
		snapshot.CustomID1, _ = value.(string)
	case "address_line_1":
		snapshot.AddressLine1, _ = value.(string)
	case "address_line_2":
		snapshot.AddressLine2, _ = value.(string)
	case "city":
		snapshot.City, _ = value.(string)
	case "state_province":
		snapshot.StateProvince, _ = value.(string)
	case "postal_code":
		snapshot.PostalCode, _ = value.(string)
	case "property_name":
		snapshot.PropertyName, _ = value.(string)
	case "year_built":
		if year, ok := value.(int); ok {
			snapshot.YearBuilt = &year
		}
	case "gross_floor_area":
		if area, ok := value.(float64); ok {
			snapshot.GrossFloorArea = &area
		}
	}
}
