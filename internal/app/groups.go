package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
	"github.com/rs/zerolog/log"
)

// GroupKey names the broadcast group of one room in one space.
type GroupKey struct {
	Space domain.SpaceID
	Room  int
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s:%d", k.Space, k.Room)
}

// Groups is the room -> connections registry used for addressed fan-out.
// A connection belongs to at most one group.
type Groups struct {
	mu     sync.RWMutex
	groups map[GroupKey]map[core.ConnID]core.SignalConnection
	byConn map[core.ConnID]GroupKey
}

func NewGroups() *Groups {
	return &Groups{
		groups: make(map[GroupKey]map[core.ConnID]core.SignalConnection),
		byConn: make(map[core.ConnID]GroupKey),
	}
}

// Join binds the connection to key, leaving any group it was in before.
func (g *Groups) Join(key GroupKey, connID core.ConnID, conn core.SignalConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(connID)
	members, ok := g.groups[key]
	if !ok {
		members = make(map[core.ConnID]core.SignalConnection)
		g.groups[key] = members
	}
	members[connID] = conn
	g.byConn[connID] = key
	log.Debug().Str("module", "app.groups").Str("group", key.String()).Str("conn", string(connID)).Msg("joined group")
}

func (g *Groups) Leave(connID core.ConnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(connID)
}

func (g *Groups) leaveLocked(connID core.ConnID) {
	key, ok := g.byConn[connID]
	if !ok {
		return
	}
	delete(g.byConn, connID)
	if members, ok := g.groups[key]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.groups, key)
		}
	}
}

func (g *Groups) GroupOf(connID core.ConnID) (GroupKey, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	key, ok := g.byConn[connID]
	return key, ok
}

// Members snapshots the group, skipping the excluded connection if given.
func (g *Groups) Members(key GroupKey, exclude core.ConnID) []core.SignalConnection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	members := g.groups[key]
	out := make([]core.SignalConnection, 0, len(members))
	for id, conn := range members {
		if id == exclude {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// DropSpace forgets every group of a terminated space.
func (g *Groups) DropSpace(spaceID domain.SpaceID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, members := range g.groups {
		if key.Space != spaceID {
			continue
		}
		for id := range members {
			delete(g.byConn, id)
		}
		delete(g.groups, key)
	}
}
