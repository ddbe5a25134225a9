package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dkeye/gather/internal/domain"
)

const (
	ActivityCap          = 200
	ActivityDefaultLimit = 50
	ActivityTTL          = 7 * 24 * time.Hour
)

// Activity actions emitted by the gateway itself. Clients may send others.
const (
	ActionJoined = "joined"
	ActionLeft   = "left"
)

type ActivityRecord struct {
	ID        string         `json:"id"`
	SpaceID   domain.SpaceID `json:"spaceId"`
	UID       domain.UserID  `json:"uid"`
	Username  string         `json:"username"`
	Action    string         `json:"action"`
	RoomIndex *int           `json:"roomIndex,omitempty"`
	RoomName  string         `json:"roomName,omitempty"`
	At        int64          `json:"at"`
}

// Activity is a capped newest-first feed per space.
type Activity struct {
	cache *Cache
	now   func() time.Time
}

func NewActivity(c *Cache) *Activity {
	return &Activity{cache: c, now: time.Now}
}

func activityKey(spaceID domain.SpaceID) string {
	return fmt.Sprintf("%s:activity:%s", keyPrefix, spaceID)
}

// Stamp fills the id and timestamp of rec if they are unset.
func Stamp(rec ActivityRecord, now time.Time) ActivityRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At == 0 {
		rec.At = now.UnixMilli()
	}
	return rec
}

// Record appends rec to its space feed and trims the feed to ActivityCap.
func (a *Activity) Record(ctx context.Context, rec ActivityRecord) {
	if !a.cache.Ready() {
		return
	}
	rec = Stamp(rec, a.now())
	b, err := json.Marshal(rec)
	if err != nil {
		a.cache.fail("activity", "encode", err)
		return
	}
	key := activityKey(rec.SpaceID)
	_, err = a.cache.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, ActivityCap-1)
		pipe.Expire(ctx, key, ActivityTTL)
		return nil
	})
	if err != nil {
		a.cache.fail("activity", "record", err)
	}
}

// ClampLimit maps a requested page size onto [1, ActivityCap]; non-positive
// asks for the default.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return ActivityDefaultLimit
	case limit > ActivityCap:
		return ActivityCap
	}
	return limit
}

// Recent returns up to limit records, newest first.
func (a *Activity) Recent(ctx context.Context, spaceID domain.SpaceID, limit int) []ActivityRecord {
	if !a.cache.Ready() {
		return nil
	}
	limit = ClampLimit(limit)
	raw, err := a.cache.rdb.LRange(ctx, activityKey(spaceID), 0, int64(limit-1)).Result()
	if err != nil {
		a.cache.fail("activity", "recent", err)
		return nil
	}
	out := make([]ActivityRecord, 0, len(raw))
	for _, item := range raw {
		var rec ActivityRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			a.cache.fail("activity", "decode", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}
