package models

import (
	"time"

	"github.com/Ramsey-B/sedum/pkg/database"
)

// SourceType identifies where an imported row came from and whether it
// has been mapped to the canonical schema yet.
type SourceType string

const (
	// SourceAssessedRaw is an unmapped row from a tax assessor export
	SourceAssessedRaw SourceType = "assessed_raw"
	// SourcePortfolioRaw is an unmapped row from an ENERGY STAR Portfolio Manager export
	SourcePortfolioRaw SourceType = "portfolio_raw"
	// SourceGreenButtonRaw is an unmapped row from a Green Button XML file
	SourceGreenButtonRaw SourceType = "green_button_raw"
	// SourceAssessedBS is a mapped assessor snapshot
	SourceAssessedBS SourceType = "assessed_bs"
	// SourcePortfolioBS is a mapped Portfolio Manager snapshot
	SourcePortfolioBS SourceType = "portfolio_bs"
	// SourceGreenButtonBS is a mapped Green Button snapshot
	SourceGreenButtonBS SourceType = "green_button_bs"
)

// MappedType returns the mapped snapshot type for a raw source type.
func (s SourceType) MappedType() SourceType {
	switch s {
	case SourcePortfolioRaw:
		return SourcePortfolioBS
	case SourceGreenButtonRaw:
		return SourceGreenButtonBS
	default:
		return SourceAssessedBS
	}
}

// IsRaw returns true for unmapped source types.
func (s SourceType) IsRaw() bool {
	switch s {
	case SourceAssessedRaw, SourcePortfolioRaw, SourceGreenButtonRaw:
		return true
	}
	return false
}

// MappedSourceTypes are the snapshot types produced by the mapping stage.
var MappedSourceTypes = []SourceType{SourceAssessedBS, SourcePortfolioBS, SourceGreenButtonBS}

// BuildingSnapshot is one imported building record. Raw rows land here
// with their row data in ExtraData; the mapping stage promotes them to a
// mapped source type with the canonical fields populated. Merges produce
// new snapshots with two parents so lineage is never lost.
type BuildingSnapshot struct {
	ID           string     `json:"id" db:"id"`
	OrgID        string     `json:"org_id" db:"org_id"`
	ImportFileID string     `json:"import_file_id" db:"import_file_id"`
	SourceType   SourceType `json:"source_type" db:"source_type"`

	// Matching identifiers
	PMPropertyID string `json:"pm_property_id" db:"pm_property_id"`
	TaxLotID     string `json:"tax_lot_id" db:"tax_lot_id"`
	CustomID1    string `json:"custom_id_1" db:"custom_id_1"`

	// Descriptive fields used for fuzzy fingerprinting
	AddressLine1   string `json:"address_line_1" db:"address_line_1"`
	AddressLine2   string `json:"address_line_2" db:"address_line_2"`
	City           string `json:"city" db:"city"`
	StateProvince  string `json:"state_province" db:"state_province"`
	PostalCode     string `json:"postal_code" db:"postal_code"`
	PropertyName   string `json:"property_name" db:"property_name"`
	YearBuilt      *int     `json:"year_built,omitempty" db:"year_built"`
	GrossFloorArea *float64 `json:"gross_floor_area,omitempty" db:"gross_floor_area"`

	// Columns that didn't map to the canonical schema
	ExtraData database.JSONB[map[string]any] `json:"extra_data" db:"extra_data"`

	// Merge lineage: a snapshot produced by a merge has two parents.
	Parent1ID *string `json:"parent1_id,omitempty" db:"parent1_id"`
	Parent2ID *string `json:"parent2_id,omitempty" db:"parent2_id"`
	// ChildrenCount is maintained by the merge engine; a snapshot with
	// children is never deleted during a remap.
	ChildrenCount int `json:"children_count" db:"children_count"`

	CanonicalBuildingID *string    `json:"canonical_building_id,omitempty" db:"canonical_building_id"`
	Confidence          *float64   `json:"confidence,omitempty" db:"confidence"`
	MatchType           *MatchType `json:"match_type,omitempty" db:"match_type"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FingerprintValues returns the ordered descriptive values used to build
// the fuzzy-match fingerprint. The primary key is deliberately excluded.
func (b *BuildingSnapshot) FingerprintValues() []string {
	return []string{
		b.PMPropertyID,
		b.TaxLotID,
		b.CustomID1,
		b.AddressLine1,
		b.AddressLine2,
		b.City,
		b.StateProvince,
		b.PostalCode,
		b.PropertyName,
	}
}

// CanonicalBuilding is the stable identity for one physical building in
// one organization. It always points at its currently-active snapshot.
type CanonicalBuilding struct {
	ID                  string    `json:"id" db:"id"`
	OrgID               string    `json:"org_id" db:"org_id"`
	CanonicalSnapshotID string    `json:"canonical_snapshot_id" db:"canonical_snapshot_id"`
	Active              bool      `json:"active" db:"active"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Column is an organization's mapping from a raw file header to a
// canonical snapshot field, with an optional unit type that drives
// cleaning.
type Column struct {
	ID            string    `json:"id" db:"id"`
	OrgID         string    `json:"org_id" db:"org_id"`
	RawColumnName string    `json:"raw_column_name" db:"raw_column_name"`
	MappedName    string    `json:"mapped_name" db:"mapped_name"`
	UnitType      string    `json:"unit_type" db:"unit_type"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
