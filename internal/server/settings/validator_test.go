package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestIsVersionAccepted(t *testing.T) {
	tests := []struct {
		name     string
		latest   *int64
		incoming int64
		want     bool
	}{
		{name: "first write", latest: nil, incoming: 1, want: true},
		{name: "first write at zero", latest: nil, incoming: 0, want: true},
		{name: "next version", latest: i64(1), incoming: 2, want: true},
		{name: "jump ahead", latest: i64(1), incoming: 10, want: true},
		{name: "same version conflicts", latest: i64(2), incoming: 2, want: false},
		{name: "stale version conflicts", latest: i64(2), incoming: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVersionAccepted(tt.latest, tt.incoming))
		})
	}
}

func TestSerialize_CompactAndSized(t *testing.T) {
	out, err := Serialize(map[string]any{"clocks": []string{"Europe/Riga", "Asia/Tokyo"}}, 0)
	require.NoError(t, err)

	assert.Equal(t, `{"clocks":["Europe/Riga","Asia/Tokyo"]}`, string(out.JSON))
	assert.Equal(t, len(out.JSON), out.Size)
}

func TestSerialize_MeasuresBytesNotRunes(t *testing.T) {
	name := strings.Repeat("東", 10)
	out, err := Serialize(map[string]string{"n": name}, 0)
	require.NoError(t, err)

	assert.Equal(t, len(`{"n":""}`)+30, out.Size)

	_, err = Serialize(map[string]string{"n": name}, len(`{"n":""}`)+29)
	assert.ErrorIs(t, err, common.ErrSettingsTooLarge)
}

func TestSerialize_HTMLNotEscaped(t *testing.T) {
	out, err := Serialize(map[string]string{"label": "<home & work>"}, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"label":"<home & work>"}`, string(out.JSON))
}

func TestSerialize_TooLarge(t *testing.T) {
	big := map[string]string{"blob": strings.Repeat("a", DefaultMaxBytes)}

	_, err := Serialize(big, DefaultMaxBytes)
	assert.ErrorIs(t, err, common.ErrSettingsTooLarge)
}

func TestSerialize_ExactlyAtLimitIsAccepted(t *testing.T) {
	overhead := len(`{"b":""}`)
	doc := map[string]string{"b": strings.Repeat("x", 100-overhead)}

	out, err := Serialize(doc, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Size)
}

func TestSerialize_Unserializable(t *testing.T) {
	_, err := Serialize(map[string]any{"f": func() {}}, 0)
	assert.ErrorIs(t, err, common.ErrInvalidSettings)

	_, err = Serialize(json.RawMessage(`{"a":`), 0)
	assert.ErrorIs(t, err, common.ErrInvalidSettings)
}

func TestSerializeObject(t *testing.T) {
	out, err := SerializeObject(json.RawMessage("  {\"a\": 1,\n \"b\": [1, 2]}  "), 0)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":[1,2]}`, string(out.JSON))

	for _, raw := range []string{``, `[]`, `"x"`, `42`, `null`} {
		_, err := SerializeObject(json.RawMessage(raw), 0)
		assert.ErrorIs(t, err, common.ErrInvalidSettings, "input %q", raw)
	}
}

func TestSerializeObject_RejectsWhatJSONBCannotStore(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid utf-8 value", raw: "{\"name\":\"\xff\xfe\"}"},
		{name: "invalid utf-8 key", raw: "{\"\xc3\":1}"},
		{name: "escaped nul in value", raw: `{"z":"a\u0000b"}`},
		{name: "escaped nul in key", raw: `{"\u0000":true}`},
		{name: "nul nested in array", raw: `{"list":[{"x":"\u0000"}]}`},
		{name: "trailing value", raw: `{"a":1} {"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SerializeObject(json.RawMessage(tt.raw), 0)
			assert.ErrorIs(t, err, common.ErrInvalidSettings)
		})
	}
}

func TestSerializeObject_AcceptsEscapesThatAreNotNul(t *testing.T) {
	out, err := SerializeObject(json.RawMessage(`{"path":"C:\\u0000dir","city":"\u6771\u4eac"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, `{"path":"C:\\u0000dir","city":"\u6771\u4eac"}`, string(out.JSON))
}

func snapshots(n int) []models.SettingsSnapshot {
	out := make([]models.SettingsSnapshot, 0, n)
	for v := n; v >= 1; v-- {
		out = append(out, models.SettingsSnapshot{ID: fmt.Sprintf("snapshot-%d", v), Version: int64(v)})
	}
	return out
}

func TestSelectRetentionDeletes(t *testing.T) {
	got := SelectRetentionDeletes(snapshots(25), 20)
	assert.Equal(t, []string{"snapshot-5", "snapshot-4", "snapshot-3", "snapshot-2", "snapshot-1"}, got)

	assert.Empty(t, SelectRetentionDeletes(snapshots(20), 20))
	assert.Empty(t, SelectRetentionDeletes(snapshots(3), 20))
	assert.Empty(t, SelectRetentionDeletes(nil, 20))
	assert.Len(t, SelectRetentionDeletes(snapshots(3), 0), 3)
}
