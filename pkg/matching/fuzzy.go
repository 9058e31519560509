package matching

import (
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/similarity"
)

// FuzzyIndex holds the n-gram index over the canonical population's
// fingerprints, with a reverse map from fingerprint back to the
// canonical snapshot that produced it. The index is a point-in-time
// snapshot; canonicals promoted after it is built are not searchable
// until the next run rebuilds it.
type FuzzyIndex struct {
	index   *similarity.Index
	reverse map[string]*models.BuildingSnapshot
}

// BuildFuzzyIndex fingerprints every canonical snapshot and indexes
// the results. Snapshots whose comparable fields are all empty are
// skipped; when two canonicals share a fingerprint the first one
// indexed wins.
func BuildFuzzyIndex(canonicals []*models.BuildingSnapshot) *FuzzyIndex {
	fi := &FuzzyIndex{
		index:   similarity.NewIndex(similarity.DefaultN),
		reverse: make(map[string]*models.BuildingSnapshot, len(canonicals)),
	}
	for _, canonical := range canonicals {
		fingerprint := Stringify(canonical.FingerprintValues())
		if fingerprint == "" {
			continue
		}
		if _, ok := fi.reverse[fingerprint]; ok {
			continue
		}
		fi.index.Add(fingerprint)
		fi.reverse[fingerprint] = canonical
	}
	return fi
}

// Len returns the number of indexed fingerprints.
func (fi *FuzzyIndex) Len() int {
	return fi.index.Len()
}

// Find returns the canonical snapshot closest to the given snapshot
// along with the similarity, or nil when nothing clears minSimilarity.
func (fi *FuzzyIndex) Find(snapshot *models.BuildingSnapshot, minSimilarity float64) (*models.BuildingSnapshot, float64) {
	fingerprint := Stringify(snapshot.FingerprintValues())
	if fingerprint == "" {
		return nil, 0
	}
	matches := fi.index.Search(fingerprint, minSimilarity)
	if len(matches) == 0 {
		return nil, 0
	}
	best := matches[0]
	return fi.reverse[best.Text], best.Similarity
}
