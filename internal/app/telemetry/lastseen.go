package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/gather/internal/domain"
)

const LastSeenTTL = 7 * 24 * time.Hour

type LastSeenRecord struct {
	UID       domain.UserID  `json:"uid"`
	SpaceID   domain.SpaceID `json:"spaceId"`
	RoomIndex int            `json:"roomIndex"`
	X         int            `json:"x"`
	Y         int            `json:"y"`
	At        int64          `json:"at"`
}

// LastSeen holds one overwritten record per uid.
type LastSeen struct {
	cache *Cache
	now   func() time.Time
}

func NewLastSeen(c *Cache) *LastSeen {
	return &LastSeen{cache: c, now: time.Now}
}

func lastSeenKey(uid domain.UserID) string {
	return fmt.Sprintf("%s:lastseen:%s", keyPrefix, uid)
}

func (l *LastSeen) Record(ctx context.Context, rec LastSeenRecord) {
	if !l.cache.Ready() {
		return
	}
	rec.At = l.now().UnixMilli()
	b, err := json.Marshal(rec)
	if err != nil {
		l.cache.fail("lastseen", "encode", err)
		return
	}
	if err := l.cache.rdb.Set(ctx, lastSeenKey(rec.UID), b, LastSeenTTL).Err(); err != nil {
		l.cache.fail("lastseen", "record", err)
	}
}

// Get reports false when nothing is cached for uid or the cache is down.
func (l *LastSeen) Get(ctx context.Context, uid domain.UserID) (LastSeenRecord, bool) {
	if !l.cache.Ready() {
		return LastSeenRecord{}, false
	}
	b, err := l.cache.rdb.Get(ctx, lastSeenKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return LastSeenRecord{}, false
	}
	if err != nil {
		l.cache.fail("lastseen", "get", err)
		return LastSeenRecord{}, false
	}
	var rec LastSeenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		l.cache.fail("lastseen", "decode", err)
		return LastSeenRecord{}, false
	}
	return rec, true
}
