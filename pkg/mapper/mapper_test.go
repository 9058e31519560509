package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
)

func TestCleaner_Clean(t *testing.T) {
	cleaner := NewCleaner(BuildingSchema)

	tests := []struct {
		name     string
		field    string
		raw      string
		expected any
		wantErr  bool
	}{
		{
			name:     "string passes through",
			field:    "address_line_1",
			raw:      " 100 Main St ",
			expected: "100 Main St",
		},
		{
			name:     "empty cleans to nil",
			field:    "city",
			raw:      "  ",
			expected: nil,
		},
		{
			name:     "float with thousands separator",
			field:    "gross_floor_area",
			raw:      "245,000.5",
			expected: 245000.5,
		},
		{
			name:     "float with trailing units",
			field:    "gross_floor_area",
			raw:      "1,000 ft2",
			expected: 1000.0,
		},
		{
			name:     "int parses",
			field:    "year_built",
			raw:      "1987",
			expected: 1987,
		},
		{
			name:    "non numeric float errors",
			field:   "gross_floor_area",
			raw:     "n/a",
			wantErr: true,
		},
		{
			name:    "unknown field errors",
			field:   "nonsense",
			raw:     "x",
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			value, err := cleaner.Clean(test.field, test.raw)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, value)
		})
	}
}

func TestMapper_MapRow(t *testing.T) {
	cleaner := NewCleaner(BuildingSchema)
	mapper := New(cleaner, []*models.Column{
		{RawColumnName: "Property Id", MappedName: "pm_property_id"},
		{RawColumnName: "Address 1", MappedName: "address_line_1"},
		{RawColumnName: "GFA", MappedName: "gross_floor_area", UnitType: "square_feet"},
		{RawColumnName: "Bogus", MappedName: "no_such_field"},
	})

	raw := &models.BuildingSnapshot{
		ID:           "raw-1",
		OrgID:        "org-1",
		ImportFileID: "file-1",
		SourceType:   models.SourcePortfolioRaw,
		ExtraData: database.JSONB[map[string]any]{Val: map[string]any{
			"Property Id": "PM-42",
			"Address 1":   "100 Main St",
			"GFA":         "52,000 ft2",
			"Bogus":       "kept",
			"Energy Star": "87",
		}},
	}

	mapped, err := mapper.MapRow(raw)

	require.NoError(t, err)
	assert.Equal(t, models.SourcePortfolioBS, mapped.SourceType)
	assert.Equal(t, "PM-42", mapped.PMPropertyID)
	assert.Equal(t, "100 Main St", mapped.AddressLine1)
	require.NotNil(t, mapped.GrossFloorArea)
	assert.Equal(t, 52000.0, *mapped.GrossFloorArea)
	require.NotNil(t, mapped.Parent1ID)
	assert.Equal(t, "raw-1", *mapped.Parent1ID)
	assert.Equal(t, map[string]any{"Bogus": "kept", "Energy Star": "87"}, mapped.ExtraData.Val)
}

func TestMapper_MapRow_EmptyCellsSkipped(t *testing.T) {
	cleaner := NewCleaner(BuildingSchema)
	mapper := New(cleaner, []*models.Column{
		{RawColumnName: "Year", MappedName: "year_built"},
	})

	raw := &models.BuildingSnapshot{
		ID:         "raw-1",
		SourceType: models.SourceAssessedRaw,
		ExtraData:  database.JSONB[map[string]any]{Val: map[string]any{"Year": ""}},
	}

	mapped, err := mapper.MapRow(raw)

	require.NoError(t, err)
	assert.Nil(t, mapped.YearBuilt)
	assert.Equal(t, models.SourceAssessedBS, mapped.SourceType)
}
