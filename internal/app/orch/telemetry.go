package orch

import (
	"context"

	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/core"
)

// Heartbeat refreshes the caller's presence. room overrides the session's
// idea of the current room when the client sends one.
func (o *Orchestrator) Heartbeat(c *core.Client, room *int) {
	s, p, ok := o.sessionOf(c)
	if !ok {
		return
	}
	rec := presenceOf(p)
	if room != nil {
		rec.RoomIndex = *room
	}
	spaceID := s.SpaceID()
	o.mirror(c.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Presence.Touch(ctx, spaceID, rec)
	})
}

// RecordActivity appends a client-reported action to the space feed.
func (o *Orchestrator) RecordActivity(c *core.Client, action string, room *int, name string) {
	s, p, ok := o.sessionOf(c)
	if !ok {
		return
	}
	if room != nil && name == "" {
		name = roomName(s, *room)
	}
	o.recordActivity(s, telemetry.ActivityRecord{
		SpaceID:   s.SpaceID(),
		UID:       p.UID,
		Username:  p.Username,
		Action:    action,
		RoomIndex: room,
		RoomName:  name,
	})
}

// TrackPosition counts one visit of (x, y) in room for the heatmap.
func (o *Orchestrator) TrackPosition(c *core.Client, room, x, y int) {
	s, _, ok := o.sessionOf(c)
	if !ok {
		return
	}
	spaceID := s.SpaceID()
	o.mirror(c.UID, func(ctx context.Context, t *telemetry.Services) {
		t.Heatmap.Increment(ctx, spaceID, room, x, y)
	})
}
