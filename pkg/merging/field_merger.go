package merging

import (
	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
)

// FieldMerger combines two snapshots' fields into the child produced
// by a merge. The incoming snapshot is the newer import, so its values
// win wherever it has one; the base fills the gaps.
type FieldMerger struct{}

// NewFieldMerger creates a new field merger.
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// Merge builds the child snapshot's field values from a base (the
// current canonical snapshot) and an incoming snapshot. Lineage,
// canonical linkage and timestamps are the engine's job; only data
// fields are filled in here.
func (m *FieldMerger) Merge(base, incoming *models.BuildingSnapshot) *models.BuildingSnapshot {
	child := &models.BuildingSnapshot{
		OrgID:        incoming.OrgID,
		ImportFileID: incoming.ImportFileID,
		SourceType:   incoming.SourceType,

		PMPropertyID: prefer(incoming.PMPropertyID, base.PMPropertyID),
		TaxLotID:     prefer(incoming.TaxLotID, base.TaxLotID),
		CustomID1:    prefer(incoming.CustomID1, base.CustomID1),

		AddressLine1:  prefer(incoming.AddressLine1, base.AddressLine1),
		AddressLine2:  prefer(incoming.AddressLine2, base.AddressLine2),
		City:          prefer(incoming.City, base.City),
		StateProvince: prefer(incoming.StateProvince, base.StateProvince),
		PostalCode:    prefer(incoming.PostalCode, base.PostalCode),
		PropertyName:  prefer(incoming.PropertyName, base.PropertyName),

		YearBuilt:      preferPtr(incoming.YearBuilt, base.YearBuilt),
		GrossFloorArea: preferPtr(incoming.GrossFloorArea, base.GrossFloorArea),
	}
	child.ExtraData = database.JSONB[map[string]any]{
		Val: MergeExtraData(base.ExtraData.Val, incoming.ExtraData.Val),
	}
	return child
}

// MergeExtraData deep-merges two extra_data maps. Incoming keys win;
// when both sides hold a map under the same key the maps merge
// recursively instead of replacing wholesale.
func MergeExtraData(base, incoming map[string]any) map[string]any {
	if base == nil && incoming == nil {
		return nil
	}
	merged := make(map[string]any, len(base)+len(incoming))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range incoming {
		incomingMap, incomingOK := value.(map[string]any)
		baseMap, baseOK := merged[key].(map[string]any)
		if incomingOK && baseOK {
			merged[key] = MergeExtraData(baseMap, incomingMap)
			continue
		}
		merged[key] = value
	}
	return merged
}

func prefer(incoming, base string) string {
	if incoming != "" {
		return incoming
	}
	return base
}

func preferPtr[T any](incoming, base *T) *T {
	if incoming != nil {
		return incoming
	}
	return base
}
