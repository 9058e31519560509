package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONBScanPopulatesVal(t *testing.T) {
	var col JSONB[map[string]string]

	err := col.Scan([]byte(`{"heating":"gas"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"heating": "gas"}, col.Val)
	require.Equal(t, col.Val, col.GetValue())
}

func TestJSONBScanNilResetsVal(t *testing.T) {
	col := JSONB[map[string]string]{Val: map[string]string{"stale": "x"}}

	err := col.Scan(nil)
	require.NoError(t, err)
	require.Nil(t, col.Val)
}

func TestJSONBScanRejectsNonBytes(t *testing.T) {
	var col JSONB[map[string]string]

	err := col.Scan(42)
	require.Error(t, err)
}

func TestJSONBValueMarshalsVal(t *testing.T) {
	col := JSONB[map[string]string]{Val: map[string]string{"year_built": "1987"}}

	v, err := col.Value()
	require.NoError(t, err)
	require.JSONEq(t, `{"year_built":"1987"}`, string(v.([]byte)))
}
