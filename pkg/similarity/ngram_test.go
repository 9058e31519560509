package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_SearchExactMatch(t *testing.T) {
	idx := NewIndex(DefaultN)
	idx.Add("100 main st springfield")
	idx.Add("200 oak ave portland")

	matches := idx.Search("100 main st springfield", 0.4)

	require.NotEmpty(t, matches)
	assert.Equal(t, "100 main st springfield", matches[0].Text)
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestIndex_SearchRanksCloserStringsFirst(t *testing.T) {
	idx := NewIndex(DefaultN)
	idx.Add("100 main street springfield")
	idx.Add("100 maine st springfield")
	idx.Add("742 evergreen terrace")

	matches := idx.Search("100 main st springfield", 0.3)

	require.True(t, len(matches) >= 2)
	assert.True(t, matches[0].Similarity >= matches[1].Similarity)
	for _, match := range matches {
		assert.NotEqual(t, "742 evergreen terrace", match.Text)
	}
}

func TestIndex_SearchHonorsThreshold(t *testing.T) {
	idx := NewIndex(DefaultN)
	idx.Add("warehouse 12 dock road")

	assert.Empty(t, idx.Search("city hall plaza", 0.4))
}

func TestIndex_AddIsIdempotent(t *testing.T) {
	idx := NewIndex(DefaultN)
	idx.Add("some building")
	idx.Add("some building")
	idx.Add("")

	assert.Equal(t, 1, idx.Len())
	matches := idx.Search("some building", 0.9)
	require.Len(t, matches, 1)
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := NewIndex(DefaultN)
	idx.Add("some building")

	assert.Nil(t, idx.Search("", 0.1))
}
