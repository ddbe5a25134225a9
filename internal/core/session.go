package core

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/gather/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found")
)

type tile struct{ x, y int }

type uidSet map[domain.UserID]struct{}

// Session is the authoritative in-memory state of one space.
// It never closes adapter-owned resources.
type Session struct {
	id      domain.SpaceID
	mapData domain.MapData

	mu             sync.RWMutex
	players        map[domain.UserID]*Player
	roomMembership map[int]uidSet
	positionIndex  map[int]map[tile]uidSet
}

func NewSession(id domain.SpaceID, mapData domain.MapData) *Session {
	return &Session{
		id:             id,
		mapData:        mapData,
		players:        make(map[domain.UserID]*Player),
		roomMembership: make(map[int]uidSet),
		positionIndex:  make(map[int]map[tile]uidSet),
	}
}

func (s *Session) SpaceID() domain.SpaceID { return s.id }
func (s *Session) Map() domain.MapData     { return s.mapData }

// AddPlayer places uid at the spawnpoint, replacing any stale entry for the same uid.
// It returns the new player and every uid whose proximity id changed.
func (s *Session) AddPlayer(connID ConnID, conn SignalConnection, uid domain.UserID, username, skin string) (Player, []domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(uidSet)
	if _, ok := s.players[uid]; ok {
		for _, o := range s.removeLocked(uid) {
			changed[o] = struct{}{}
		}
	}

	spawn := s.mapData.Spawnpoint
	p := &Player{
		UID:      uid,
		Username: username,
		Skin:     skin,
		Room:     spawn.RoomIndex,
		X:        spawn.X,
		Y:        spawn.Y,
		ConnID:   connID,
		Conn:     conn,
		Status:   domain.StatusAvailable,
	}
	s.players[uid] = p
	s.indexLocked(p)
	for u := range s.clusterLocked(p) {
		changed[u] = struct{}{}
	}

	log.Info().Str("module", "core.session").Str("space", string(s.id)).Str("uid", string(uid)).Msg("player added")
	return *p, sortedUIDs(changed)
}

// RemovePlayer is a no-op for an absent uid. It returns the former neighbours
// whose proximity id was cleared because they are now alone.
func (s *Session) RemovePlayer(uid domain.UserID) ([]domain.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[uid]; !ok {
		return nil, false
	}
	orphans := s.removeLocked(uid)
	log.Info().Str("module", "core.session").Str("space", string(s.id)).Str("uid", string(uid)).Msg("player removed")
	return orphans, true
}

// ChangeRoom moves uid into another room at (x, y) and reclusters.
func (s *Session) ChangeRoom(uid domain.UserID, room, x, y int) ([]domain.UserID, error) {
	if !s.mapData.HasRoom(room) {
		return nil, ErrRoomNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[uid]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return s.relocateLocked(p, room, x, y), nil
}

// MovePlayer moves uid inside its current room and returns every uid whose
// proximity id changed as a result.
func (s *Session) MovePlayer(uid domain.UserID, x, y int) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[uid]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return s.relocateLocked(p, p.Room, x, y), nil
}

func (s *Session) SetSkin(uid domain.UserID, skin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[uid]
	if ok {
		p.Skin = skin
	}
	return ok
}

func (s *Session) SetStatus(uid domain.UserID, status domain.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[uid]
	if ok {
		p.Status = status
	}
	return ok
}

func (s *Session) GetPlayer(uid domain.UserID) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[uid]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (s *Session) GetPlayerRoom(uid domain.UserID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[uid]
	if !ok {
		return 0, false
	}
	return p.Room, true
}

func (s *Session) GetPlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// GetPlayersInRoom returns a snapshot ordered by uid.
func (s *Session) GetPlayersInRoom(room int) []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.roomMembership[room]
	out := make([]Player, 0, len(members))
	for _, uid := range sortedUIDs(members) {
		out = append(out, *s.players[uid])
	}
	return out
}

// Players returns a snapshot of every player in the session ordered by uid.
func (s *Session) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Player) int {
		switch {
		case a.UID < b.UID:
			return -1
		case a.UID > b.UID:
			return 1
		}
		return 0
	})
	return out
}

func (s *Session) GetRoomIndexForChannelID(channelID string) (int, bool) {
	if channelID == "" {
		return 0, false
	}
	for i, r := range s.mapData.Rooms {
		if r.ChannelID == channelID {
			return i, true
		}
	}
	return 0, false
}

func (s *Session) removeLocked(uid domain.UserID) []domain.UserID {
	p := s.players[uid]
	former := s.neighboursLocked(p.Room, p.X, p.Y, uid)
	s.unindexLocked(p)
	delete(s.players, uid)
	changed := make(uidSet)
	s.releaseOrphansLocked(former, changed)
	return sortedUIDs(changed)
}

func (s *Session) relocateLocked(p *Player, room, x, y int) []domain.UserID {
	former := s.neighboursLocked(p.Room, p.X, p.Y, p.UID)
	s.unindexLocked(p)
	p.Room, p.X, p.Y = room, x, y
	s.indexLocked(p)
	changed := s.clusterLocked(p)
	s.releaseOrphansLocked(former, changed)
	return sortedUIDs(changed)
}

func (s *Session) indexLocked(p *Player) {
	members, ok := s.roomMembership[p.Room]
	if !ok {
		members = make(uidSet)
		s.roomMembership[p.Room] = members
	}
	members[p.UID] = struct{}{}

	tiles, ok := s.positionIndex[p.Room]
	if !ok {
		tiles = make(map[tile]uidSet)
		s.positionIndex[p.Room] = tiles
	}
	key := tile{p.X, p.Y}
	occupants, ok := tiles[key]
	if !ok {
		occupants = make(uidSet)
		tiles[key] = occupants
	}
	occupants[p.UID] = struct{}{}
}

func (s *Session) unindexLocked(p *Player) {
	if members, ok := s.roomMembership[p.Room]; ok {
		delete(members, p.UID)
		if len(members) == 0 {
			delete(s.roomMembership, p.Room)
		}
	}
	tiles, ok := s.positionIndex[p.Room]
	if !ok {
		return
	}
	key := tile{p.X, p.Y}
	if occupants, ok := tiles[key]; ok {
		delete(occupants, p.UID)
		if len(occupants) == 0 {
			delete(tiles, key)
		}
	}
	if len(tiles) == 0 {
		delete(s.positionIndex, p.Room)
	}
}

func sortedUIDs(set uidSet) []domain.UserID {
	out := make([]domain.UserID, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}
