package core

import "github.com/dkeye/gather/internal/domain"

// Player is the session-scoped state of one connected user.
// ProximityID is empty when the player belongs to no proximity group.
type Player struct {
	UID         domain.UserID
	Username    string
	Skin        string
	Room        int
	X           int
	Y           int
	ConnID      ConnID
	Conn        SignalConnection
	Status      domain.Status
	ProximityID string
}

// PlayerDTO is a read-only view for APIs (no transport fields).
type PlayerDTO struct {
	UID         domain.UserID `json:"uid"`
	Username    string        `json:"username"`
	Skin        string        `json:"skin"`
	Room        int           `json:"room"`
	X           int           `json:"x"`
	Y           int           `json:"y"`
	Status      domain.Status `json:"status"`
	ProximityID *string       `json:"proximityId"`
}

func (p Player) DTO() PlayerDTO {
	return PlayerDTO{
		UID:         p.UID,
		Username:    p.Username,
		Skin:        p.Skin,
		Room:        p.Room,
		X:           p.X,
		Y:           p.Y,
		Status:      p.Status,
		ProximityID: NullableProximity(p.ProximityID),
	}
}

func NullableProximity(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
