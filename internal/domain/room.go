package domain

import "fmt"

// Teleporter moves whoever steps on the tile to another room and tile.
type Teleporter struct {
	RoomIndex int `json:"roomIndex"`
	X         int `json:"x"`
	Y         int `json:"y"`
}

type Tile struct {
	Impassable    bool        `json:"impassable,omitempty"`
	Teleporter    *Teleporter `json:"teleporter,omitempty"`
	PrivateAreaID string      `json:"privateAreaId,omitempty"`
}

// Room is one named tile grid of a space. Tilemap is sparse and keyed by TileKey.
type Room struct {
	Name      string          `json:"name"`
	ChannelID string          `json:"channelId,omitempty"`
	Tilemap   map[string]Tile `json:"tilemap"`
}

func TileKey(x, y int) string {
	return fmt.Sprintf("%d, %d", x, y)
}
