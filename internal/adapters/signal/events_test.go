package signal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
)

func intp(v int) *int { return &v }

func parse(t *testing.T, raw string) (Inbound, error) {
	t.Helper()
	env, err := core.DecodeEnvelope([]byte(raw))
	require.NoError(t, err)
	return Parse(env)
}

func TestParseAcceptsValidEvents(t *testing.T) {
	tests := []struct {
		raw  string
		want Inbound
	}{
		{`{"type":"joinRealm","data":{"spaceId":"s1","shareToken":"tok"}}`, JoinRealm{SpaceID: "s1", ShareToken: "tok"}},
		{`{"type":"joinRealm","data":{"spaceId":"s1"}}`, JoinRealm{SpaceID: "s1"}},
		{`{"type":"movePlayer","data":{"x":0,"y":-2}}`, MovePlayer{X: 0, Y: -2}},
		{`{"type":"teleport","data":{"x":3,"y":4,"roomIndex":0}}`, Teleport{X: 3, Y: 4, RoomIndex: 0}},
		{`{"type":"changedSkin","data":"009"}`, ChangedSkin{Skin: "009"}},
		{`{"type":"sendMessage","data":"  hello \n\t world  "}`, SendMessage{Message: "hello world"}},
		{`{"type":"updateStatus","data":{"status":"away"}}`, UpdateStatus{Status: domain.StatusAway}},
		{`{"type":"heartbeat"}`, Heartbeat{}},
		{`{"type":"heartbeat","data":null}`, Heartbeat{}},
		{`{"type":"heartbeat","data":{"roomIndex":2}}`, Heartbeat{RoomIndex: intp(2)}},
		{`{"type":"activity","data":{"action":"wave"}}`, Activity{Action: "wave"}},
		{`{"type":"activity","data":{"action":"enter","roomIndex":1,"roomName":"office"}}`, Activity{Action: "enter", RoomIndex: intp(1), RoomName: "office"}},
		{`{"type":"trackPosition","data":{"roomIndex":0,"x":5,"y":5}}`, TrackPosition{RoomIndex: 0, X: 5, Y: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parse(t, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Name(), got.Name())
		})
	}
}

func TestParseRejectsMalformedEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"fly","data":{}}`},
		{"join without space", `{"type":"joinRealm","data":{"shareToken":"tok"}}`},
		{"join with numeric space", `{"type":"joinRealm","data":{"spaceId":5}}`},
		{"join without data", `{"type":"joinRealm"}`},
		{"move missing y", `{"type":"movePlayer","data":{"x":1}}`},
		{"move fractional", `{"type":"movePlayer","data":{"x":1.5,"y":1}}`},
		{"move as string", `{"type":"movePlayer","data":{"x":"1","y":1}}`},
		{"teleport missing room", `{"type":"teleport","data":{"x":1,"y":1}}`},
		{"teleport negative room", `{"type":"teleport","data":{"x":1,"y":1,"roomIndex":-1}}`},
		{"skin empty", `{"type":"changedSkin","data":""}`},
		{"skin object", `{"type":"changedSkin","data":{"skin":"009"}}`},
		{"skin with symbols", `{"type":"changedSkin","data":"../etc"}`},
		{"skin too long", `{"type":"changedSkin","data":"` + strings.Repeat("a", domain.MaxSkinLen+1) + `"}`},
		{"message blank", `{"type":"sendMessage","data":"   \n  "}`},
		{"message too long", `{"type":"sendMessage","data":"` + strings.Repeat("x", MaxMessageLen+1) + `"}`},
		{"message not a string", `{"type":"sendMessage","data":42}`},
		{"status unknown", `{"type":"updateStatus","data":{"status":"sleeping"}}`},
		{"status missing", `{"type":"updateStatus","data":{}}`},
		{"heartbeat negative room", `{"type":"heartbeat","data":{"roomIndex":-3}}`},
		{"activity without action", `{"type":"activity","data":{"roomIndex":1}}`},
		{"track missing x", `{"type":"trackPosition","data":{"roomIndex":0,"y":5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestMessageLengthCountsAfterCollapse(t *testing.T) {
	padded := strings.Repeat("a ", MaxMessageLen/2) + strings.Repeat(" ", 50)
	got, err := parse(t, `{"type":"sendMessage","data":"`+padded+`"}`)
	require.NoError(t, err)
	assert.Len(t, got.(SendMessage).Message, MaxMessageLen-1)
}

func TestEveryInboundEventHasAParser(t *testing.T) {
	for _, name := range []string{
		EventJoinRealm, EventMovePlayer, EventTeleport, EventChangedSkin, EventSendMessage,
		EventUpdateStatus, EventHeartbeat, EventActivity, EventTrackPosition,
	} {
		assert.Contains(t, parsers, name)
	}
	assert.Len(t, parsers, 9)
}
