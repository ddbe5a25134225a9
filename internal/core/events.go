package core

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/dkeye/gather/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outbound event names.
const (
	EventJoinedRealm         = "joinedRealm"
	EventFailedToJoinRoom    = "failedToJoinRoom"
	EventPlayerJoinedRoom    = "playerJoinedRoom"
	EventPlayerLeftRoom      = "playerLeftRoom"
	EventPlayerMoved         = "playerMoved"
	EventPlayerTeleported    = "playerTeleported"
	EventProximityUpdate     = "proximityUpdate"
	EventPlayerChangedSkin   = "playerChangedSkin"
	EventReceiveMessage      = "receiveMessage"
	EventPlayerStatusChanged = "playerStatusChanged"
	EventKicked              = "kicked"
	EventOnlinePlayersUpdate = "onlinePlayersUpdate"
	EventActivityEvent       = "activityEvent"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RawEnvelope is an inbound envelope whose payload is decoded per event.
type RawEnvelope struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

func Encode(eventType string, data any) (Frame, error) {
	b, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

func DecodeEnvelope(b []byte) (RawEnvelope, error) {
	var env RawEnvelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type JoinedRealmPayload struct {
	SpaceID domain.SpaceID `json:"spaceId"`
	Self    PlayerDTO      `json:"self"`
	Players []PlayerDTO    `json:"players"`
}

type PlayerMovedPayload struct {
	UID domain.UserID `json:"uid"`
	X   int           `json:"x"`
	Y   int           `json:"y"`
}

type PlayerTeleportedPayload struct {
	UID       domain.UserID `json:"uid"`
	X         int           `json:"x"`
	Y         int           `json:"y"`
	RoomIndex int           `json:"roomIndex"`
}

type ProximityUpdatePayload struct {
	ProximityID *string `json:"proximityId"`
}

type PlayerChangedSkinPayload struct {
	UID  domain.UserID `json:"uid"`
	Skin string        `json:"skin"`
}

type ReceiveMessagePayload struct {
	UID     domain.UserID `json:"uid"`
	Message string        `json:"message"`
}

type PlayerStatusChangedPayload struct {
	UID    domain.UserID `json:"uid"`
	Status domain.Status `json:"status"`
}

type OnlinePlayer struct {
	UID      domain.UserID `json:"uid"`
	Username string        `json:"username"`
	Room     int           `json:"room"`
	Status   domain.Status `json:"status"`
}
