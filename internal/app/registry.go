package app

import (
	"errors"
	"sync"

	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
)

// Kicker evicts uid from spaceID with a reason the player gets to see. It must
// leave the player alone if it is no longer in spaceID.
type Kicker interface {
	KickFrom(spaceID domain.SpaceID, uid domain.UserID, reason string)
}

// LogoutResult describes what a logout removed.
type LogoutResult struct {
	SpaceID domain.SpaceID
	Player  core.Player
	// Orphans lost their proximity group because the player left.
	Orphans []domain.UserID
}

// Registry maps spaces to sessions and keeps the uid->space and
// connection->uid reverse indices in step with them.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.SpaceID]*core.Session
	playerSpace map[domain.UserID]domain.SpaceID
	connPlayer  map[core.ConnID]domain.UserID

	kicker Kicker
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.SpaceID]*core.Session),
		playerSpace: make(map[domain.UserID]domain.SpaceID),
		connPlayer:  make(map[core.ConnID]domain.UserID),
	}
}

// BindKicker sets the helper TerminateSession notifies players through.
func (r *Registry) BindKicker(k Kicker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kicker = k
}

func (r *Registry) CreateSession(spaceID domain.SpaceID, mapData domain.MapData) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[spaceID]; ok {
		return nil, ErrSessionExists
	}
	s := core.NewSession(spaceID, mapData)
	r.sessions[spaceID] = s
	log.Info().Str("module", "app.registry").Str("space", string(spaceID)).Msg("created session")
	return s, nil
}

func (r *Registry) GetSession(spaceID domain.SpaceID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[spaceID]
	return s, ok
}

func (r *Registry) GetPlayerSession(uid domain.UserID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spaceID, ok := r.playerSpace[uid]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[spaceID]
	return s, ok
}

func (r *Registry) UserOfConnection(connID core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.connPlayer[connID]
	return uid, ok
}

// AddPlayerToSession registers uid in the space's session and both reverse
// indices under one lock. With limit > 0 a uid that is not already inside is
// refused with ErrSessionFull once the session holds limit players. A uid
// still registered elsewhere, or on another connection, is logged out of its
// old place first without notifying anyone there.
func (r *Registry) AddPlayerToSession(
	connID core.ConnID,
	conn core.SignalConnection,
	spaceID domain.SpaceID,
	uid domain.UserID,
	username, skin string,
	limit int,
) (core.Player, []domain.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[spaceID]
	if !ok {
		return core.Player{}, nil, ErrSessionNotFound
	}
	old, inside := s.GetPlayer(uid)
	if limit > 0 && !inside && s.GetPlayerCount() >= limit {
		return core.Player{}, nil, ErrSessionFull
	}

	if prev, ok := r.playerSpace[uid]; ok && prev != spaceID {
		r.logOutLocked(uid)
		log.Warn().Str("module", "app.registry").Str("uid", string(uid)).Str("from", string(prev)).Str("to", string(spaceID)).Msg("moved player still registered elsewhere")
	} else if inside && old.ConnID != connID {
		delete(r.connPlayer, old.ConnID)
	}

	p, changed := s.AddPlayer(connID, conn, uid, username, skin)
	r.playerSpace[uid] = spaceID
	r.connPlayer[connID] = uid
	log.Info().Str("module", "app.registry").Str("space", string(spaceID)).Str("uid", string(uid)).Str("conn", string(connID)).Msg("bound player")
	return p, changed, nil
}

// LogOutPlayer is a no-op when uid has no active session.
func (r *Registry) LogOutPlayer(uid domain.UserID) (LogoutResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logOutLocked(uid)
}

// LogOutPlayerFrom logs uid out only while it is still in spaceID.
func (r *Registry) LogOutPlayerFrom(spaceID domain.SpaceID, uid domain.UserID) (LogoutResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playerSpace[uid] != spaceID {
		return LogoutResult{}, false
	}
	return r.logOutLocked(uid)
}

func (r *Registry) LogOutByConnectionID(connID core.ConnID) (LogoutResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.connPlayer[connID]
	if !ok {
		return LogoutResult{}, false
	}
	return r.logOutLocked(uid)
}

func (r *Registry) logOutLocked(uid domain.UserID) (LogoutResult, bool) {
	spaceID, ok := r.playerSpace[uid]
	if !ok {
		return LogoutResult{}, false
	}
	delete(r.playerSpace, uid)

	res := LogoutResult{SpaceID: spaceID}
	s, ok := r.sessions[spaceID]
	if !ok {
		return res, false
	}
	p, ok := s.GetPlayer(uid)
	if !ok {
		return res, false
	}
	res.Player = p
	delete(r.connPlayer, p.ConnID)
	res.Orphans, _ = s.RemovePlayer(uid)
	log.Info().Str("module", "app.registry").Str("space", string(spaceID)).Str("uid", string(uid)).Msg("logged out player")
	return res, true
}

// TerminateSession kicks every player of the space with reason, then drops the
// session. Unknown spaces are ignored.
func (r *Registry) TerminateSession(spaceID domain.SpaceID, reason string) {
	r.mu.RLock()
	s, ok := r.sessions[spaceID]
	kicker := r.kicker
	r.mu.RUnlock()
	if !ok {
		return
	}

	for _, p := range s.Players() {
		if kicker != nil {
			kicker.KickFrom(spaceID, p.UID, reason)
		} else {
			r.LogOutPlayerFrom(spaceID, p.UID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Anyone who slipped in while we were kicking goes with the session.
	for _, p := range s.Players() {
		if r.playerSpace[p.UID] == spaceID {
			r.logOutLocked(p.UID)
		} else {
			s.RemovePlayer(p.UID)
		}
	}
	delete(r.sessions, spaceID)
	log.Info().Str("module", "app.registry").Str("space", string(spaceID)).Str("reason", reason).Msg("terminated session")
}

func (r *Registry) PlayerIDs(spaceID domain.SpaceID) []domain.UserID {
	s, ok := r.GetSession(spaceID)
	if !ok {
		return nil
	}
	players := s.Players()
	out := make([]domain.UserID, 0, len(players))
	for _, p := range players {
		out = append(out, p.UID)
	}
	return out
}

// PlayerCounts reports the live player count of each requested space; spaces
// without a session count as zero.
func (r *Registry) PlayerCounts(spaceIDs []domain.SpaceID) map[domain.SpaceID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.SpaceID]int, len(spaceIDs))
	for _, id := range spaceIDs {
		if s, ok := r.sessions[id]; ok {
			out[id] = s.GetPlayerCount()
		} else {
			out[id] = 0
		}
	}
	return out
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.playerSpace)
}
