package orch

import (
	"context"
	"time"

	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
	"github.com/dkeye/gather/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxPlayers       = 30
	DefaultTelemetryTimeout = 2 * time.Second
)

// Orchestrator drives sessions from connection events and fans the results
// out to room and space members.
type Orchestrator struct {
	Registry  *app.Registry
	Groups    *app.Groups
	Spaces    app.SpaceStore
	Accounts  app.AccountStore
	Policy    app.Policy
	Telemetry *telemetry.Services
	Metrics   *metrics.Metrics

	MaxPlayers       int
	TelemetryTimeout time.Duration

	pending *app.JoinGuard
	queue   *mirrorQueue
}

func New(reg *app.Registry, spaces app.SpaceStore, accounts app.AccountStore) *Orchestrator {
	o := &Orchestrator{
		Registry:         reg,
		Groups:           app.NewGroups(),
		Spaces:           spaces,
		Accounts:         accounts,
		Policy:           app.SharePolicy{},
		MaxPlayers:       DefaultMaxPlayers,
		TelemetryTimeout: DefaultTelemetryTimeout,
		pending:          app.NewJoinGuard(),
		queue:            newMirrorQueue(mirrorLanes, mirrorLaneSize),
	}
	reg.BindKicker(o)
	return o
}

// Wait blocks until background telemetry and store writes submitted so far
// are done.
func (o *Orchestrator) Wait() {
	o.queue.wait()
}

// Close stops accepting background work and waits for the queued writes.
// Events handled after Close still update sessions but are not mirrored.
func (o *Orchestrator) Close() {
	o.queue.close()
}

// sessionOf resolves the session c is currently playing in. A connection that
// was relocated or kicked no longer resolves.
func (o *Orchestrator) sessionOf(c *core.Client) (*core.Session, core.Player, bool) {
	uid, ok := o.Registry.UserOfConnection(c.ConnID)
	if !ok || uid != c.UID {
		return nil, core.Player{}, false
	}
	s, ok := o.Registry.GetPlayerSession(uid)
	if !ok {
		return nil, core.Player{}, false
	}
	p, ok := s.GetPlayer(uid)
	if !ok {
		return nil, core.Player{}, false
	}
	return s, p, true
}

func (o *Orchestrator) send(conn core.SignalConnection, event string, data any) {
	if conn == nil {
		return
	}
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "orch").Str("event", event).Err(err).Msg("encode failed")
		return
	}
	o.deliver(conn, frame)
}

func (o *Orchestrator) deliver(conn core.SignalConnection, frame core.Frame) {
	if err := conn.TrySend(frame); err != nil {
		if o.Metrics != nil {
			o.Metrics.OutboundDrops.Inc()
		}
		log.Debug().Str("module", "orch").Err(err).Msg("frame dropped")
	}
}

// broadcastRoom sends to every connection bound to key except exclude.
func (o *Orchestrator) broadcastRoom(key app.GroupKey, exclude core.ConnID, event string, data any) {
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "orch").Str("event", event).Err(err).Msg("encode failed")
		return
	}
	for _, conn := range o.Groups.Members(key, exclude) {
		o.deliver(conn, frame)
	}
}

// broadcastSpace sends to every player of the session regardless of room.
func (o *Orchestrator) broadcastSpace(s *core.Session, event string, data any) {
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Str("module", "orch").Str("event", event).Err(err).Msg("encode failed")
		return
	}
	for _, p := range s.Players() {
		if p.Conn != nil {
			o.deliver(p.Conn, frame)
		}
	}
}

func (o *Orchestrator) broadcastOnline(s *core.Session) {
	players := s.Players()
	list := make([]core.OnlinePlayer, 0, len(players))
	for _, p := range players {
		list = append(list, core.OnlinePlayer{UID: p.UID, Username: p.Username, Room: p.Room, Status: p.Status})
	}
	o.broadcastSpace(s, core.EventOnlinePlayersUpdate, list)
}

// notifyProximity tells each changed player its own new group id.
func (o *Orchestrator) notifyProximity(s *core.Session, uids []domain.UserID) {
	for _, uid := range uids {
		p, ok := s.GetPlayer(uid)
		if !ok {
			continue
		}
		o.send(p.Conn, core.EventProximityUpdate, core.ProximityUpdatePayload{ProximityID: core.NullableProximity(p.ProximityID)})
	}
}

// async runs fn off the event path with its own deadline. Work for the same
// uid runs in the order it was submitted.
func (o *Orchestrator) async(uid domain.UserID, fn func(ctx context.Context)) {
	if !o.queue.submit(string(uid), mirrorJob{timeout: o.TelemetryTimeout, fn: fn}) {
		log.Debug().Str("module", "orch").Str("uid", string(uid)).Msg("background write after close dropped")
	}
}

// mirror is async for telemetry writes; it does nothing without telemetry.
func (o *Orchestrator) mirror(uid domain.UserID, fn func(ctx context.Context, t *telemetry.Services)) {
	if o.Telemetry == nil {
		return
	}
	t := o.Telemetry
	o.async(uid, func(ctx context.Context) { fn(ctx, t) })
}

func (o *Orchestrator) mirrorPosition(spaceID domain.SpaceID, p core.Player) {
	o.mirror(p.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Presence.Touch(ctx, spaceID, presenceOf(p))
		t.LastSeen.Record(ctx, lastSeenOf(spaceID, p))
	})
}

// recordActivity stores rec and shows it to the whole space.
func (o *Orchestrator) recordActivity(s *core.Session, rec telemetry.ActivityRecord) {
	rec = telemetry.Stamp(rec, time.Now())
	o.broadcastSpace(s, core.EventActivityEvent, rec)
	o.mirror(rec.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Activity.Record(ctx, rec)
	})
}

func (o *Orchestrator) updateGauges() {
	if o.Metrics == nil {
		return
	}
	o.Metrics.Sessions.Set(float64(o.Registry.SessionCount()))
	o.Metrics.Players.Set(float64(o.Registry.PlayerCount()))
}

func presenceOf(p core.Player) telemetry.PresenceRecord {
	return telemetry.PresenceRecord{UID: p.UID, Username: p.Username, RoomIndex: p.Room, Status: p.Status}
}

func lastSeenOf(spaceID domain.SpaceID, p core.Player) telemetry.LastSeenRecord {
	return telemetry.LastSeenRecord{UID: p.UID, SpaceID: spaceID, RoomIndex: p.Room, X: p.X, Y: p.Y}
}

func roomKey(spaceID domain.SpaceID, room int) app.GroupKey {
	return app.GroupKey{Space: spaceID, Room: room}
}
