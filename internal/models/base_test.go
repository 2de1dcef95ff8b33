package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_UniqueAndOrdered(t *testing.T) {
	a := NewULID()
	time.Sleep(2 * time.Millisecond)
	b := NewULID()

	assert.NotEqual(t, a, b)
	assert.Less(t, a.String(), b.String(), "ULIDs sort by creation time")
	assert.Len(t, a.String(), 26)
}

func TestParseULID_RoundTrip(t *testing.T) {
	id := NewULID()
	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseULID_Invalid(t *testing.T) {
	_, err := ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULID_IsZero(t *testing.T) {
	var zero ULID
	assert.True(t, zero.IsZero())
	assert.False(t, NewULID().IsZero())
}

func TestULID_ValueScan(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var scanned ULID
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, id, scanned)

	var fromBytes ULID
	require.NoError(t, fromBytes.Scan([]byte(id.String())))
	assert.Equal(t, id, fromBytes)
}

func TestULID_ValueScan_Zero(t *testing.T) {
	var zero ULID
	v, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "the zero ULID stores as NULL")

	var scanned ULID
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())

	require.NoError(t, scanned.Scan(""))
	assert.True(t, scanned.IsZero())
}

func TestULID_Scan_UnsupportedType(t *testing.T) {
	var u ULID
	assert.Error(t, u.Scan(42))
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var parsed ULID
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, id, parsed)
}

func TestULID_JSON_Null(t *testing.T) {
	var zero ULID
	data, err := json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var parsed ULID
	require.NoError(t, json.Unmarshal([]byte("null"), &parsed))
	assert.True(t, parsed.IsZero())
}

func TestULID_JSON_Invalid(t *testing.T) {
	var u ULID
	assert.Error(t, json.Unmarshal([]byte(`42`), &u))
	assert.Error(t, json.Unmarshal([]byte(`"not-a-ulid"`), &u))
}

func TestBaseModel_BeforeCreate(t *testing.T) {
	var m BaseModel
	require.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.ID.IsZero(), "insert assigns an id when none was set")

	preset := NewULID()
	m = BaseModel{ID: preset}
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, preset, m.ID, "a caller-set id is preserved")
}
