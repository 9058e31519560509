package merging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
)

func TestFieldMerger_IncomingWinsWhenPresent(t *testing.T) {
	merger := NewFieldMerger()
	year := 1987
	base := &models.BuildingSnapshot{
		ID:           "base",
		AddressLine1: "100 Main St",
		City:         "Springfield",
		PropertyName: "Old Name",
		YearBuilt:    &year,
	}
	incoming := &models.BuildingSnapshot{
		ID:           "incoming",
		OrgID:        "org-1",
		AddressLine1: "100 Main Street",
		PropertyName: "",
	}

	child := merger.Merge(base, incoming)

	assert.Equal(t, "org-1", child.OrgID)
	assert.Equal(t, "100 Main Street", child.AddressLine1)
	assert.Equal(t, "Springfield", child.City)
	assert.Equal(t, "Old Name", child.PropertyName)
	require.NotNil(t, child.YearBuilt)
	assert.Equal(t, 1987, *child.YearBuilt)
}

func TestMergeExtraData(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]any
		incoming map[string]any
		expected map[string]any
	}{
		{
			name:     "incoming key wins",
			base:     map[string]any{"use": "office", "floors": 3},
			incoming: map[string]any{"use": "retail"},
			expected: map[string]any{"use": "retail", "floors": 3},
		},
		{
			name:     "nested maps merge recursively",
			base:     map[string]any{"meters": map[string]any{"gas": "m-1", "water": "m-2"}},
			incoming: map[string]any{"meters": map[string]any{"gas": "m-9"}},
			expected: map[string]any{"meters": map[string]any{"gas": "m-9", "water": "m-2"}},
		},
		{
			name:     "scalar replaces map",
			base:     map[string]any{"meters": map[string]any{"gas": "m-1"}},
			incoming: map[string]any{"meters": "none"},
			expected: map[string]any{"meters": "none"},
		},
		{
			name:     "both nil",
			base:     nil,
			incoming: nil,
			expected: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, MergeExtraData(test.base, test.incoming))
		})
	}
}

func TestFieldMerger_ExtraDataCarried(t *testing.T) {
	merger := NewFieldMerger()
	base := &models.BuildingSnapshot{
		ExtraData: database.JSONB[map[string]any]{Val: map[string]any{"zone": "B2"}},
	}
	incoming := &models.BuildingSnapshot{
		ExtraData: database.JSONB[map[string]any]{Val: map[string]any{"owner": "City"}},
	}

	child := merger.Merge(base, incoming)

	assert.Equal(t, map[string]any{"zone": "B2", "owner": "City"}, child.ExtraData.Val)
}
