package core

import (
	"github.com/dkeye/gather/internal/domain"
	"github.com/google/uuid"
)

// ProximityRange is the Chebyshev radius of a proximity group.
const ProximityRange = 3

var newProximityID = uuid.NewString

// neighboursLocked lists every other occupant of the (2R+1)x(2R+1) box around
// (x, y) in room, in a stable order.
func (s *Session) neighboursLocked(room, x, y int, self domain.UserID) []domain.UserID {
	tiles, ok := s.positionIndex[room]
	if !ok {
		return nil
	}
	var out []domain.UserID
	for dx := -ProximityRange; dx <= ProximityRange; dx++ {
		for dy := -ProximityRange; dy <= ProximityRange; dy++ {
			occupants, ok := tiles[tile{x + dx, y + dy}]
			if !ok {
				continue
			}
			for _, uid := range sortedUIDs(occupants) {
				if uid != self {
					out = append(out, uid)
				}
			}
		}
	}
	return out
}

// clusterLocked runs one local merge pass for the mover. Ids only flow from
// the mover to its neighbours, so two groups that touch may need more than
// one move to converge on a single id.
func (s *Session) clusterLocked(mover *Player) uidSet {
	changed := make(uidSet)
	neighbours := s.neighboursLocked(mover.Room, mover.X, mover.Y, mover.UID)
	if len(neighbours) == 0 {
		if mover.ProximityID != "" {
			mover.ProximityID = ""
			changed[mover.UID] = struct{}{}
		}
		return changed
	}

	for _, uid := range neighbours {
		other := s.players[uid]
		switch {
		case mover.ProximityID == "" && other.ProximityID != "":
			mover.ProximityID = other.ProximityID
			changed[mover.UID] = struct{}{}
		case mover.ProximityID == "" && other.ProximityID == "":
			id := newProximityID()
			mover.ProximityID = id
			other.ProximityID = id
			changed[mover.UID] = struct{}{}
			changed[other.UID] = struct{}{}
		case mover.ProximityID != other.ProximityID:
			other.ProximityID = mover.ProximityID
			changed[other.UID] = struct{}{}
		}
	}
	return changed
}

// releaseOrphansLocked clears the proximity id of former neighbours that are
// now alone.
func (s *Session) releaseOrphansLocked(former []domain.UserID, changed uidSet) {
	for _, uid := range former {
		p, ok := s.players[uid]
		if !ok || p.ProximityID == "" {
			continue
		}
		if len(s.neighboursLocked(p.Room, p.X, p.Y, uid)) > 0 {
			continue
		}
		p.ProximityID = ""
		changed[uid] = struct{}{}
	}
}
