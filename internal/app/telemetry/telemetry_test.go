package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewCache(rdb, time.Second)
	require.NoError(t, c.Connect(context.Background()))
	require.True(t, c.Ready())
	return c, mr
}

func TestHeatmapCountsVisits(t *testing.T) {
	c, mr := newTestCache(t)
	h := NewHeatmap(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.Increment(ctx, "A", 0, 5, 5)
	}
	view := h.Get(ctx, "A", 0)
	assert.Equal(t, map[string]int64{"5,5": 3}, view.Counts)
	assert.Equal(t, []HeatmapCell{{X: 5, Y: 5, Count: 3}}, view.Cells)
	assert.Equal(t, HeatmapTTL, mr.TTL("gather:heatmap:A:0"))

	assert.Empty(t, h.Get(ctx, "A", 1).Counts)
}

func TestHeatmapOrdersMostVisitedFirst(t *testing.T) {
	c, _ := newTestCache(t)
	h := NewHeatmap(c)
	ctx := context.Background()

	h.Increment(ctx, "A", 0, 1, 1)
	h.Increment(ctx, "A", 0, 2, 2)
	h.Increment(ctx, "A", 0, 2, 2)
	h.Increment(ctx, "A", 0, 0, 3)

	view := h.Get(ctx, "A", 0)
	assert.Equal(t, []HeatmapCell{
		{X: 2, Y: 2, Count: 2},
		{X: 0, Y: 3, Count: 1},
		{X: 1, Y: 1, Count: 1},
	}, view.Cells)
}

func TestActivityCapsAndReadsNewestFirst(t *testing.T) {
	c, mr := newTestCache(t)
	a := NewActivity(c)
	ctx := context.Background()

	for i := 0; i < 205; i++ {
		a.Record(ctx, ActivityRecord{SpaceID: "A", UID: "u1", Action: fmt.Sprintf("step-%d", i)})
	}

	items, err := mr.List("gather:activity:A")
	require.NoError(t, err)
	assert.Len(t, items, ActivityCap)
	assert.Equal(t, ActivityTTL, mr.TTL("gather:activity:A"))

	all := a.Recent(ctx, "A", ActivityCap)
	require.Len(t, all, ActivityCap)
	assert.Equal(t, "step-204", all[0].Action)
	assert.Equal(t, "step-5", all[len(all)-1].Action)
	assert.NotEmpty(t, all[0].ID)
	assert.NotZero(t, all[0].At)

	assert.Len(t, a.Recent(ctx, "A", 0), ActivityDefaultLimit)
	assert.Len(t, a.Recent(ctx, "A", 1000), ActivityCap)
	assert.Len(t, a.Recent(ctx, "A", 3), 3)
	assert.Empty(t, a.Recent(ctx, "B", 10))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, ActivityDefaultLimit, ClampLimit(0))
	assert.Equal(t, ActivityDefaultLimit, ClampLimit(-4))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, ActivityCap, ClampLimit(ActivityCap+1))
}

func TestPresencePrunesStaleEntries(t *testing.T) {
	c, _ := newTestCache(t)
	p := NewPresence(c)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p.now = func() time.Time { return t0 }
	p.Touch(ctx, "A", PresenceRecord{UID: "old", Username: "Old", RoomIndex: 1, Status: "busy"})

	p.now = func() time.Time { return t0.Add(PresenceWindow + time.Minute) }
	p.Touch(ctx, "A", PresenceRecord{UID: "fresh", Username: "Fresh", RoomIndex: 2, Status: "available"})

	online := p.Online(ctx, "A")
	require.Len(t, online, 1)
	assert.Equal(t, PresenceRecord{
		UID:       "fresh",
		Username:  "Fresh",
		RoomIndex: 2,
		Status:    "available",
		UpdatedAt: t0.Add(PresenceWindow + time.Minute).UnixMilli(),
	}, online[0])
}

func TestPresenceLeave(t *testing.T) {
	c, mr := newTestCache(t)
	p := NewPresence(c)
	ctx := context.Background()

	p.Touch(ctx, "A", PresenceRecord{UID: "u1", Username: "one"})
	p.Touch(ctx, "A", PresenceRecord{UID: "u2", Username: "two"})
	assert.Equal(t, PresenceWindow, mr.TTL("gather:presence:A:u1"))

	p.Leave(ctx, "A", "u1")
	online := p.Online(ctx, "A")
	require.Len(t, online, 1)
	assert.EqualValues(t, "u2", online[0].UID)
	assert.False(t, mr.Exists("gather:presence:A:u1"))
}

func TestLastSeenOverwrites(t *testing.T) {
	c, mr := newTestCache(t)
	l := NewLastSeen(c)
	ctx := context.Background()

	_, ok := l.Get(ctx, "u1")
	assert.False(t, ok)

	l.Record(ctx, LastSeenRecord{UID: "u1", SpaceID: "A", RoomIndex: 0, X: 1, Y: 1})
	l.Record(ctx, LastSeenRecord{UID: "u1", SpaceID: "B", RoomIndex: 2, X: 7, Y: 9})

	rec, ok := l.Get(ctx, "u1")
	require.True(t, ok)
	assert.EqualValues(t, "B", rec.SpaceID)
	assert.Equal(t, 2, rec.RoomIndex)
	assert.Equal(t, 7, rec.X)
	assert.Equal(t, 9, rec.Y)
	assert.NotZero(t, rec.At)
	assert.Equal(t, LastSeenTTL, mr.TTL("gather:lastseen:u1"))
}

func TestServicesAreNoOpsWhenNotReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	svc := NewServices(NewCache(rdb, time.Second))
	ctx := context.Background()

	svc.Heatmap.Increment(ctx, "A", 0, 1, 1)
	svc.Activity.Record(ctx, ActivityRecord{SpaceID: "A", Action: "joined"})
	svc.Presence.Touch(ctx, "A", PresenceRecord{UID: "u1"})
	svc.LastSeen.Record(ctx, LastSeenRecord{UID: "u1"})

	assert.Empty(t, mr.Keys())
	assert.Empty(t, svc.Heatmap.Get(ctx, "A", 0).Counts)
	assert.Nil(t, svc.Activity.Recent(ctx, "A", 10))
	assert.Nil(t, svc.Presence.Online(ctx, "A"))
	_, ok := svc.LastSeen.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestFailuresAreSwallowedAndCounted(t *testing.T) {
	c, mr := newTestCache(t)
	var failures []string
	c.OnError = func(service string) { failures = append(failures, service) }
	mr.Close()

	ctx := context.Background()
	NewHeatmap(c).Increment(ctx, "A", 0, 1, 1)
	assert.Empty(t, NewActivity(c).Recent(ctx, "A", 5))

	assert.Equal(t, []string{"heatmap", "activity"}, failures)
}

func TestConnectGivesUpWithContext(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()
	c := NewCache(rdb, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
	assert.False(t, c.Ready())
}
