package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"geowarn/internal/geofence"
)

var pickerRegions = []geofence.Region{
	{ID: "tlv", DisplayName: "Tel Aviv", CenterLat: 32.08, CenterLon: 34.78, RadiusKm: 7},
	{ID: "holon", DisplayName: "Holon", CenterLat: 32.02, CenterLon: 34.78, RadiusKm: 4},
	{ID: "bat-yam", DisplayName: "Bat Yam", CenterLat: 32.02, CenterLon: 34.75, RadiusKm: 3},
}

func TestPickerStateLifecycle(t *testing.T) {
	p := newPickerState()

	sel := p.open(1, []string{"tlv"})
	require.True(t, sel["tlv"])

	sel = p.toggle(1, "holon")
	require.True(t, sel["holon"])
	sel = p.toggle(1, "tlv")
	require.False(t, sel["tlv"])

	final, ok := p.close(1)
	require.True(t, ok)
	require.Equal(t, map[string]bool{"holon": true}, final)

	_, ok = p.close(1)
	require.False(t, ok, "closing twice means the picker is gone")
}

func TestPickerToggleWithoutOpen(t *testing.T) {
	p := newPickerState()
	require.Nil(t, p.toggle(7, "tlv"), "stale buttons on old messages are ignored")
}

func TestRegionKeyboard(t *testing.T) {
	kb := regionKeyboard(pickerRegions, map[string]bool{"holon": true})

	require.Len(t, kb.InlineKeyboard, 4, "one row per region plus the action row")
	require.Equal(t, "Tel Aviv", kb.InlineKeyboard[0][0].Text)
	require.Equal(t, "✅ Holon", kb.InlineKeyboard[1][0].Text)
	require.Equal(t, "regions:holon", *kb.InlineKeyboard[1][0].CallbackData)

	actions := kb.InlineKeyboard[3]
	require.Len(t, actions, 2)
	require.Equal(t, "regions:done", *actions[0].CallbackData)
	require.Equal(t, "regions:cancel", *actions[1].CallbackData)
}

func TestSelectionIDsKeepTableOrder(t *testing.T) {
	ids := selectionIDs(pickerRegions, map[string]bool{"bat-yam": true, "tlv": true})
	require.Equal(t, []string{"tlv", "bat-yam"}, ids)
}

func TestParseTargetID(t *testing.T) {
	id, ok := parseTargetID(" 12345 ")
	require.True(t, ok)
	require.Equal(t, int64(12345), id)

	_, ok = parseTargetID("")
	require.False(t, ok)
	_, ok = parseTargetID("abc")
	require.False(t, ok)
	_, ok = parseTargetID("0")
	require.False(t, ok)
}
