package domain

type SpaceID string

type Spawnpoint struct {
	RoomIndex int `json:"roomIndex"`
	X         int `json:"x"`
	Y         int `json:"y"`
}

// MapData is the immutable map snapshot a session is created from.
type MapData struct {
	Spawnpoint Spawnpoint `json:"spawnpoint"`
	Rooms      []Room     `json:"rooms"`
}

func (m MapData) HasRoom(index int) bool {
	return index >= 0 && index < len(m.Rooms)
}

// Space is owned by the durable store; sessions only ever see a copy.
type Space struct {
	ID         SpaceID `json:"id"`
	OwnerID    UserID  `json:"ownerId"`
	ShareToken string  `json:"shareToken"`
	OnlyOwner  bool    `json:"onlyOwner"`
	Map        MapData `json:"map"`
}

func (s *Space) IsOwner(uid UserID) bool {
	return s.OwnerID == uid
}
