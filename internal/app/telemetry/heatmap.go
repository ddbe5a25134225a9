package telemetry

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/gather/internal/domain"
)

const HeatmapTTL = 7 * 24 * time.Hour

type HeatmapCell struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Count int64 `json:"count"`
}

// HeatmapView is the whole counter map of one room plus its cells ordered by
// count, most visited first.
type HeatmapView struct {
	Counts map[string]int64 `json:"counts"`
	Cells  []HeatmapCell    `json:"cells"`
}

type Heatmap struct {
	cache *Cache
}

func NewHeatmap(c *Cache) *Heatmap {
	return &Heatmap{cache: c}
}

func heatmapKey(spaceID domain.SpaceID, room int) string {
	return fmt.Sprintf("%s:heatmap:%s:%d", keyPrefix, spaceID, room)
}

func cellField(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

func parseCellField(f string) (int, int, bool) {
	xs, ys, ok := strings.Cut(f, ",")
	if !ok {
		return 0, 0, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// Increment counts one visit of (x, y) and refreshes the room's expiry.
func (h *Heatmap) Increment(ctx context.Context, spaceID domain.SpaceID, room, x, y int) {
	if !h.cache.Ready() {
		return
	}
	key := heatmapKey(spaceID, room)
	_, err := h.cache.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, cellField(x, y), 1)
		pipe.Expire(ctx, key, HeatmapTTL)
		return nil
	})
	if err != nil {
		h.cache.fail("heatmap", "increment", err)
	}
}

func (h *Heatmap) Get(ctx context.Context, spaceID domain.SpaceID, room int) HeatmapView {
	view := HeatmapView{Counts: map[string]int64{}, Cells: []HeatmapCell{}}
	if !h.cache.Ready() {
		return view
	}
	raw, err := h.cache.rdb.HGetAll(ctx, heatmapKey(spaceID, room)).Result()
	if err != nil {
		h.cache.fail("heatmap", "get", err)
		return view
	}
	keys := make(map[HeatmapCell]string, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		x, y, ok := parseCellField(field)
		if !ok {
			continue
		}
		view.Counts[field] = n
		cell := HeatmapCell{X: x, Y: y, Count: n}
		view.Cells = append(view.Cells, cell)
		keys[cell] = field
	}
	slices.SortFunc(view.Cells, func(a, b HeatmapCell) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(keys[a], keys[b])
	})
	return view
}
