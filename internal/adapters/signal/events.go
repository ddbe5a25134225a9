package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inbound event names.
const (
	EventJoinRealm     = "joinRealm"
	EventMovePlayer    = "movePlayer"
	EventTeleport      = "teleport"
	EventChangedSkin   = "changedSkin"
	EventSendMessage   = "sendMessage"
	EventUpdateStatus  = "updateStatus"
	EventHeartbeat     = "heartbeat"
	EventActivity      = "activity"
	EventTrackPosition = "trackPosition"
)

const MaxMessageLen = 300

var ErrUnknownEvent = errors.New("unknown event")

// Inbound is one validated client event. The set of variants is closed.
type Inbound interface {
	Name() string
	inbound()
}

type JoinRealm struct {
	SpaceID    domain.SpaceID
	ShareToken string
}

type MovePlayer struct{ X, Y int }

type Teleport struct{ X, Y, RoomIndex int }

type ChangedSkin struct{ Skin string }

type SendMessage struct{ Message string }

type UpdateStatus struct{ Status domain.Status }

type Heartbeat struct{ RoomIndex *int }

type Activity struct {
	Action    string
	RoomIndex *int
	RoomName  string
}

type TrackPosition struct{ RoomIndex, X, Y int }

func (JoinRealm) Name() string     { return EventJoinRealm }
func (MovePlayer) Name() string    { return EventMovePlayer }
func (Teleport) Name() string      { return EventTeleport }
func (ChangedSkin) Name() string   { return EventChangedSkin }
func (SendMessage) Name() string   { return EventSendMessage }
func (UpdateStatus) Name() string  { return EventUpdateStatus }
func (Heartbeat) Name() string     { return EventHeartbeat }
func (Activity) Name() string      { return EventActivity }
func (TrackPosition) Name() string { return EventTrackPosition }

func (JoinRealm) inbound()     {}
func (MovePlayer) inbound()    {}
func (Teleport) inbound()      {}
func (ChangedSkin) inbound()   {}
func (SendMessage) inbound()   {}
func (UpdateStatus) inbound()  {}
func (Heartbeat) inbound()     {}
func (Activity) inbound()      {}
func (TrackPosition) inbound() {}

var validate = validator.New(validator.WithRequiredStructEnabled())

type joinRealmPayload struct {
	SpaceID    string `json:"spaceId" validate:"required,max=64"`
	ShareToken string `json:"shareToken" validate:"max=128"`
}

type movePayload struct {
	X *int `json:"x" validate:"required"`
	Y *int `json:"y" validate:"required"`
}

type teleportPayload struct {
	X         *int `json:"x" validate:"required"`
	Y         *int `json:"y" validate:"required"`
	RoomIndex *int `json:"roomIndex" validate:"required,min=0"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=available busy away"`
}

type heartbeatPayload struct {
	RoomIndex *int `json:"roomIndex" validate:"omitempty,min=0"`
}

type activityPayload struct {
	Action    string `json:"action" validate:"required,max=64"`
	RoomIndex *int   `json:"roomIndex" validate:"omitempty,min=0"`
	RoomName  string `json:"roomName" validate:"max=64"`
}

type trackPositionPayload struct {
	RoomIndex *int `json:"roomIndex" validate:"required,min=0"`
	X         *int `json:"x" validate:"required"`
	Y         *int `json:"y" validate:"required"`
}

var parsers = map[string]func(data []byte) (Inbound, error){
	EventJoinRealm: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[joinRealmPayload](data)
		if err != nil {
			return nil, err
		}
		return JoinRealm{SpaceID: domain.SpaceID(p.SpaceID), ShareToken: p.ShareToken}, nil
	},
	EventMovePlayer: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[movePayload](data)
		if err != nil {
			return nil, err
		}
		return MovePlayer{X: *p.X, Y: *p.Y}, nil
	},
	EventTeleport: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[teleportPayload](data)
		if err != nil {
			return nil, err
		}
		return Teleport{X: *p.X, Y: *p.Y, RoomIndex: *p.RoomIndex}, nil
	},
	EventChangedSkin: func(data []byte) (Inbound, error) {
		skin, err := decodeString(data, fmt.Sprintf("required,max=%d,alphanum", domain.MaxSkinLen))
		if err != nil {
			return nil, err
		}
		return ChangedSkin{Skin: skin}, nil
	},
	EventSendMessage: func(data []byte) (Inbound, error) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		msg := CollapseWhitespace(raw)
		if err := validate.Var(msg, fmt.Sprintf("required,max=%d", MaxMessageLen)); err != nil {
			return nil, err
		}
		return SendMessage{Message: msg}, nil
	},
	EventUpdateStatus: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[statusPayload](data)
		if err != nil {
			return nil, err
		}
		status, err := domain.ParseStatus(p.Status)
		if err != nil {
			return nil, err
		}
		return UpdateStatus{Status: status}, nil
	},
	EventHeartbeat: func(data []byte) (Inbound, error) {
		if isEmpty(data) {
			return Heartbeat{}, nil
		}
		p, err := decodeStruct[heartbeatPayload](data)
		if err != nil {
			return nil, err
		}
		return Heartbeat{RoomIndex: p.RoomIndex}, nil
	},
	EventActivity: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[activityPayload](data)
		if err != nil {
			return nil, err
		}
		return Activity{Action: p.Action, RoomIndex: p.RoomIndex, RoomName: p.RoomName}, nil
	},
	EventTrackPosition: func(data []byte) (Inbound, error) {
		p, err := decodeStruct[trackPositionPayload](data)
		if err != nil {
			return nil, err
		}
		return TrackPosition{RoomIndex: *p.RoomIndex, X: *p.X, Y: *p.Y}, nil
	},
}

// Parse turns an envelope into its validated variant.
func Parse(env core.RawEnvelope) (Inbound, error) {
	parse, ok := parsers[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return parse(env.Data)
}

// CollapseWhitespace trims s and folds every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func decodeStruct[T any](data []byte) (T, error) {
	var v T
	if isEmpty(data) {
		return v, errors.New("missing payload")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

func decodeString(data []byte, tag string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	if err := validate.Var(s, tag); err != nil {
		return "", err
	}
	return s, nil
}

func isEmpty(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}
