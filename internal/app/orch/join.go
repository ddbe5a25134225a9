package orch

import (
	"context"
	"errors"

	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
	"github.com/rs/zerolog/log"
)

// Rejection is a join failure: Code labels metrics, Message is shown to the user.
type Rejection struct {
	Code    string
	Message string
}

var (
	RejectSpaceFull      = Rejection{Code: "full", Message: "Space is full."}
	RejectSpaceNotFound  = Rejection{Code: "space_not_found", Message: "Space not found."}
	RejectNoAccount      = Rejection{Code: "account_not_found", Message: "Account not found."}
	RejectPrivate        = Rejection{Code: "private", Message: "This space is private."}
	RejectStaleShareLink = Rejection{Code: "stale_share_token", Message: "The share link has been changed."}
	RejectAlreadyJoining = Rejection{Code: "already_joining", Message: "Already joining a space."}
)

// ReasonRelocated is what a connection sees when its uid joins from elsewhere.
const ReasonRelocated = "You have logged in from another location."

// Join admits c into spaceID or answers with failedToJoinRoom. It reports
// whether the player ended up in the space.
func (o *Orchestrator) Join(ctx context.Context, c *core.Client, spaceID domain.SpaceID, shareToken string) bool {
	release, ok := o.pending.Acquire(c.UID)
	if !ok {
		o.reject(c, spaceID, RejectAlreadyJoining)
		return false
	}
	defer release()

	if s, ok := o.Registry.GetSession(spaceID); ok && s.GetPlayerCount() >= o.MaxPlayers {
		if _, inside := s.GetPlayer(c.UID); !inside {
			o.reject(c, spaceID, RejectSpaceFull)
			return false
		}
	}

	space, err := o.Spaces.GetSpace(ctx, spaceID)
	if err != nil {
		if !errors.Is(err, app.ErrNotFound) {
			log.Error().Str("module", "orch").Str("space", string(spaceID)).Err(err).Msg("space lookup failed")
		}
		o.reject(c, spaceID, RejectSpaceNotFound)
		return false
	}
	account, err := o.Accounts.GetAccount(ctx, c.UID)
	if err != nil {
		if !errors.Is(err, app.ErrNotFound) {
			log.Error().Str("module", "orch").Str("uid", string(c.UID)).Err(err).Msg("account lookup failed")
		}
		o.reject(c, spaceID, RejectNoAccount)
		return false
	}

	switch err := o.Policy.Authorize(space, c.UID, shareToken); {
	case errors.Is(err, app.ErrPrivateSpace):
		o.reject(c, spaceID, RejectPrivate)
		return false
	case err != nil:
		o.reject(c, spaceID, RejectStaleShareLink)
		return false
	}

	o.evictPrevious(c)

	s, ok := o.Registry.GetSession(spaceID)
	if !ok {
		s, err = o.Registry.CreateSession(spaceID, space.Map)
		if err != nil {
			// Lost the creation race; use the winner's session.
			if s, ok = o.Registry.GetSession(spaceID); !ok {
				o.reject(c, spaceID, RejectSpaceNotFound)
				return false
			}
		}
	}

	p, changed, err := o.Registry.AddPlayerToSession(c.ConnID, c.Conn, spaceID, c.UID, account.Username, account.Skin, o.MaxPlayers)
	switch {
	case errors.Is(err, app.ErrSessionFull):
		o.reject(c, spaceID, RejectSpaceFull)
		return false
	case err != nil:
		// The session was terminated between lookup and registration.
		o.reject(c, spaceID, RejectSpaceNotFound)
		return false
	}
	key := roomKey(spaceID, p.Room)
	o.Groups.Join(key, c.ConnID, c.Conn)

	others := make([]core.PlayerDTO, 0)
	for _, other := range s.Players() {
		if other.UID != c.UID {
			others = append(others, other.DTO())
		}
	}
	o.send(c.Conn, core.EventJoinedRealm, core.JoinedRealmPayload{SpaceID: spaceID, Self: p.DTO(), Players: others})
	o.broadcastRoom(key, c.ConnID, core.EventPlayerJoinedRoom, p.DTO())
	o.notifyProximity(s, changed)
	o.broadcastOnline(s)
	o.updateGauges()

	room := p.Room
	o.mirrorPosition(spaceID, p)
	o.recordActivity(s, telemetry.ActivityRecord{
		SpaceID:   spaceID,
		UID:       p.UID,
		Username:  p.Username,
		Action:    telemetry.ActionJoined,
		RoomIndex: &room,
		RoomName:  roomName(s, room),
	})

	log.Info().Str("module", "orch").Str("space", string(spaceID)).Str("uid", string(c.UID)).Str("conn", string(c.ConnID)).Msg("joined realm")
	return true
}

// evictPrevious removes whatever session c.UID is in before it joins again.
// Another connection of the same uid is kicked; the joining connection itself
// just leaves quietly.
func (o *Orchestrator) evictPrevious(c *core.Client) {
	s, ok := o.Registry.GetPlayerSession(c.UID)
	if !ok {
		return
	}
	prev, ok := s.GetPlayer(c.UID)
	if !ok {
		return
	}
	if prev.ConnID != c.ConnID {
		o.KickFrom(s.SpaceID(), c.UID, ReasonRelocated)
		return
	}
	o.leave(s.SpaceID(), c.UID, "")
}

func (o *Orchestrator) reject(c *core.Client, spaceID domain.SpaceID, r Rejection) {
	if o.Metrics != nil {
		o.Metrics.JoinRejections.WithLabelValues(r.Code).Inc()
	}
	log.Info().Str("module", "orch").Str("space", string(spaceID)).Str("uid", string(c.UID)).Str("reason", r.Code).Msg("join rejected")
	o.send(c.Conn, core.EventFailedToJoinRoom, r.Message)
}

func roomName(s *core.Session, room int) string {
	m := s.Map()
	if !m.HasRoom(room) {
		return ""
	}
	return m.Rooms[room].Name
}
