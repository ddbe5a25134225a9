package orch

import (
	"context"

	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Move(c *core.Client, x, y int) {
	s, _, ok := o.sessionOf(c)
	if !ok {
		return
	}
	changed, err := s.MovePlayer(c.UID, x, y)
	if err != nil {
		return
	}
	p, _ := s.GetPlayer(c.UID)
	o.broadcastRoom(roomKey(s.SpaceID(), p.Room), c.ConnID, core.EventPlayerMoved, core.PlayerMovedPayload{UID: p.UID, X: p.X, Y: p.Y})
	o.notifyProximity(s, changed)
	o.mirrorPosition(s.SpaceID(), p)
}

// Teleport places the player at (x, y) of room. Within the same room it is
// announced as a move.
func (o *Orchestrator) Teleport(c *core.Client, x, y, room int) {
	s, before, ok := o.sessionOf(c)
	if !ok {
		return
	}
	changed, err := s.ChangeRoom(c.UID, room, x, y)
	if err != nil {
		log.Debug().Str("module", "orch").Str("uid", string(c.UID)).Int("room", room).Err(err).Msg("teleport refused")
		return
	}
	p, _ := s.GetPlayer(c.UID)
	spaceID := s.SpaceID()

	if before.Room == p.Room {
		o.broadcastRoom(roomKey(spaceID, p.Room), c.ConnID, core.EventPlayerMoved, core.PlayerMovedPayload{UID: p.UID, X: p.X, Y: p.Y})
	} else {
		o.broadcastRoom(roomKey(spaceID, before.Room), c.ConnID, core.EventPlayerLeftRoom, p.UID)
		to := roomKey(spaceID, p.Room)
		o.Groups.Join(to, c.ConnID, c.Conn)
		o.broadcastRoom(to, c.ConnID, core.EventPlayerJoinedRoom, p.DTO())
		o.broadcastRoom(to, "", core.EventPlayerTeleported, core.PlayerTeleportedPayload{UID: p.UID, X: p.X, Y: p.Y, RoomIndex: p.Room})
		o.broadcastOnline(s)
	}
	o.notifyProximity(s, changed)
	o.mirrorPosition(spaceID, p)
}

// ChangeSkin applies skin in the session right away and persists it in the
// background.
func (o *Orchestrator) ChangeSkin(c *core.Client, skin string) {
	s, p, ok := o.sessionOf(c)
	if !ok || !s.SetSkin(c.UID, skin) {
		return
	}
	o.broadcastRoom(roomKey(s.SpaceID(), p.Room), c.ConnID, core.EventPlayerChangedSkin, core.PlayerChangedSkinPayload{UID: c.UID, Skin: skin})

	uid := c.UID
	o.async(uid, func(ctx context.Context) {
		if err := o.Accounts.UpdateSkin(ctx, uid, skin); err != nil {
			log.Warn().Str("module", "orch").Str("uid", string(uid)).Err(err).Msg("persist skin failed")
		}
	})
}

func (o *Orchestrator) SendMessage(c *core.Client, message string) {
	s, p, ok := o.sessionOf(c)
	if !ok {
		return
	}
	o.broadcastRoom(roomKey(s.SpaceID(), p.Room), c.ConnID, core.EventReceiveMessage, core.ReceiveMessagePayload{UID: c.UID, Message: message})
}

func (o *Orchestrator) UpdateStatus(c *core.Client, status domain.Status) {
	s, p, ok := o.sessionOf(c)
	if !ok || !s.SetStatus(c.UID, status) {
		return
	}
	p.Status = status
	o.broadcastRoom(roomKey(s.SpaceID(), p.Room), c.ConnID, core.EventPlayerStatusChanged, core.PlayerStatusChangedPayload{UID: c.UID, Status: status})
	o.broadcastOnline(s)
	spaceID := s.SpaceID()
	o.mirror(c.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Presence.Touch(ctx, spaceID, presenceOf(p))
	})
}

// KickFrom sends reason to uid's connection and removes the player from
// spaceID. It does nothing if uid is not in spaceID.
func (o *Orchestrator) KickFrom(spaceID domain.SpaceID, uid domain.UserID, reason string) {
	o.leave(spaceID, uid, reason)
}

// Disconnect is called by the transport once per closed connection.
func (o *Orchestrator) Disconnect(connID core.ConnID) {
	res, ok := o.Registry.LogOutByConnectionID(connID)
	o.Groups.Leave(connID)
	if !ok {
		return
	}
	s, ok := o.Registry.GetSession(res.SpaceID)
	if !ok {
		o.updateGauges()
		return
	}
	o.departed(s, res)
	log.Info().Str("module", "orch").Str("space", string(res.SpaceID)).Str("uid", string(res.Player.UID)).Msg("disconnected")
}

// TerminateSession kicks everyone out of spaceID and drops its session.
func (o *Orchestrator) TerminateSession(spaceID domain.SpaceID, reason string) {
	o.Registry.TerminateSession(spaceID, reason)
	o.Groups.DropSpace(spaceID)
	o.updateGauges()
}

// leave removes uid from spaceID; a non-empty reason is delivered as kicked
// before anything else. A uid that already left spaceID is not touched.
func (o *Orchestrator) leave(spaceID domain.SpaceID, uid domain.UserID, reason string) {
	s, ok := o.Registry.GetPlayerSession(uid)
	if !ok || s.SpaceID() != spaceID {
		return
	}
	p, ok := s.GetPlayer(uid)
	if !ok {
		return
	}
	res, ok := o.Registry.LogOutPlayerFrom(spaceID, uid)
	if !ok {
		return
	}
	if reason != "" {
		o.send(p.Conn, core.EventKicked, reason)
		log.Info().Str("module", "orch").Str("space", string(spaceID)).Str("uid", string(uid)).Str("reason", reason).Msg("kicked")
	}
	o.Groups.Leave(res.Player.ConnID)
	o.departed(s, res)
}

func (o *Orchestrator) departed(s *core.Session, res app.LogoutResult) {
	p := res.Player
	o.broadcastRoom(roomKey(res.SpaceID, p.Room), p.ConnID, core.EventPlayerLeftRoom, p.UID)
	o.notifyProximity(s, res.Orphans)
	o.broadcastOnline(s)
	o.updateGauges()

	room := p.Room
	spaceID := res.SpaceID
	o.mirror(p.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Presence.Leave(ctx, spaceID, p.UID)
		t.LastSeen.Record(ctx, lastSeenOf(spaceID, p))
	})
	o.recordActivity(s, telemetry.ActivityRecord{
		SpaceID:   spaceID,
		UID:       p.UID,
		Username:  p.Username,
		Action:    telemetry.ActionLeft,
		RoomIndex: &room,
		RoomName:  roomName(s, room),
	})
}
