package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/gather/internal/domain"
)

// PresenceWindow is how long a presence entry stays live without a refresh.
const PresenceWindow = 5 * time.Minute

type PresenceRecord struct {
	UID       domain.UserID `json:"uid" redis:"uid"`
	Username  string        `json:"username" redis:"username"`
	RoomIndex int           `json:"roomIndex" redis:"roomIndex"`
	Status    domain.Status `json:"status" redis:"status"`
	UpdatedAt int64         `json:"updatedAt" redis:"updatedAt"`
}

// Presence keeps a time-scored set of online uids per space plus one
// attribute hash per uid.
type Presence struct {
	cache *Cache
	now   func() time.Time
}

func NewPresence(c *Cache) *Presence {
	return &Presence{cache: c, now: time.Now}
}

func presenceSetKey(spaceID domain.SpaceID) string {
	return fmt.Sprintf("%s:presence:%s", keyPrefix, spaceID)
}

func presenceRecordKey(spaceID domain.SpaceID, uid domain.UserID) string {
	return fmt.Sprintf("%s:presence:%s:%s", keyPrefix, spaceID, uid)
}

// Touch marks rec.UID online in spaceID and refreshes both expiries.
func (p *Presence) Touch(ctx context.Context, spaceID domain.SpaceID, rec PresenceRecord) {
	if !p.cache.Ready() {
		return
	}
	now := p.now()
	rec.UpdatedAt = now.UnixMilli()
	setKey := presenceSetKey(spaceID)
	recKey := presenceRecordKey(spaceID, rec.UID)
	_, err := p.cache.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(rec.UpdatedAt), Member: string(rec.UID)})
		pipe.HSet(ctx, recKey,
			"uid", string(rec.UID),
			"username", rec.Username,
			"roomIndex", rec.RoomIndex,
			"status", string(rec.Status),
			"updatedAt", rec.UpdatedAt,
		)
		pipe.Expire(ctx, recKey, PresenceWindow)
		pipe.Expire(ctx, setKey, PresenceWindow)
		return nil
	})
	if err != nil {
		p.cache.fail("presence", "touch", err)
	}
}

// Leave marks uid offline in spaceID.
func (p *Presence) Leave(ctx context.Context, spaceID domain.SpaceID, uid domain.UserID) {
	if !p.cache.Ready() {
		return
	}
	_, err := p.cache.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, presenceSetKey(spaceID), string(uid))
		pipe.Del(ctx, presenceRecordKey(spaceID, uid))
		return nil
	})
	if err != nil {
		p.cache.fail("presence", "leave", err)
	}
}

// Online prunes entries older than the window, then returns the rest ordered
// by most recent refresh first.
func (p *Presence) Online(ctx context.Context, spaceID domain.SpaceID) []PresenceRecord {
	if !p.cache.Ready() {
		return nil
	}
	setKey := presenceSetKey(spaceID)
	cutoff := p.now().Add(-PresenceWindow).UnixMilli()
	if err := p.cache.rdb.ZRemRangeByScore(ctx, setKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		p.cache.fail("presence", "prune", err)
		return nil
	}
	uids, err := p.cache.rdb.ZRevRange(ctx, setKey, 0, -1).Result()
	if err != nil {
		p.cache.fail("presence", "online", err)
		return nil
	}
	if len(uids) == 0 {
		return nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(uids))
	_, err = p.cache.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, uid := range uids {
			cmds[i] = pipe.HGetAll(ctx, presenceRecordKey(spaceID, domain.UserID(uid)))
		}
		return nil
	})
	if err != nil {
		p.cache.fail("presence", "online", err)
		return nil
	}
	out := make([]PresenceRecord, 0, len(uids))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		var rec PresenceRecord
		if err := cmd.Scan(&rec); err != nil {
			p.cache.fail("presence", "decode", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}
