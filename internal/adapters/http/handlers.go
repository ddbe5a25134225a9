package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/gather/internal/app/orch"
	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
)

const MaxPlayerCountIDs = 100

type readHandlers struct {
	orch *orch.Orchestrator
}

func roomIndexParam(c *gin.Context) (int, bool) {
	room, err := strconv.Atoi(c.Param("roomIndex"))
	if err != nil || room < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room index"})
		return 0, false
	}
	return room, true
}

func (h *readHandlers) playersInRoom(c *gin.Context) {
	room, ok := roomIndexParam(c)
	if !ok {
		return
	}
	s, ok := h.orch.Registry.GetPlayerSession(callerOf(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in a space"})
		return
	}
	players := s.GetPlayersInRoom(room)
	out := make([]core.PlayerDTO, 0, len(players))
	for _, p := range players {
		out = append(out, p.DTO())
	}
	c.JSON(http.StatusOK, gin.H{"players": out})
}

func (h *readHandlers) playerCounts(c *gin.Context) {
	var ids []domain.SpaceID
	for _, part := range strings.Split(c.Query("spaceIds"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, domain.SpaceID(part))
		}
	}
	if len(ids) == 0 || len(ids) > MaxPlayerCountIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spaceIds must list between 1 and 100 ids"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": h.orch.Registry.PlayerCounts(ids)})
}

// requireMember lets the request through only if the caller is currently
// playing in :spaceId.
func (h *readHandlers) requireMember(c *gin.Context) {
	spaceID := domain.SpaceID(c.Param("spaceId"))
	s, ok := h.orch.Registry.GetPlayerSession(callerOf(c))
	if !ok || s.SpaceID() != spaceID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
		return
	}
	c.Next()
}

func (h *readHandlers) presence(c *gin.Context) {
	online := []telemetry.PresenceRecord{}
	if t := h.orch.Telemetry; t != nil {
		if recs := t.Presence.Online(c.Request.Context(), domain.SpaceID(c.Param("spaceId"))); recs != nil {
			online = recs
		}
	}
	c.JSON(http.StatusOK, gin.H{"online": online})
}

func (h *readHandlers) activity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	feed := []telemetry.ActivityRecord{}
	if t := h.orch.Telemetry; t != nil {
		if recs := t.Activity.Recent(c.Request.Context(), domain.SpaceID(c.Param("spaceId")), limit); recs != nil {
			feed = recs
		}
	}
	c.JSON(http.StatusOK, gin.H{"activity": feed})
}

func (h *readHandlers) heatmap(c *gin.Context) {
	room, ok := roomIndexParam(c)
	if !ok {
		return
	}
	view := telemetry.HeatmapView{Counts: map[string]int64{}, Cells: []telemetry.HeatmapCell{}}
	if t := h.orch.Telemetry; t != nil {
		view = t.Heatmap.Get(c.Request.Context(), domain.SpaceID(c.Param("spaceId")), room)
	}
	c.JSON(http.StatusOK, view)
}

func (h *readHandlers) lastSeen(c *gin.Context) {
	uid := domain.UserID(c.Param("uid"))
	if uid != callerOf(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if t := h.orch.Telemetry; t != nil {
		if rec, ok := t.LastSeen.Get(c.Request.Context(), uid); ok {
			c.JSON(http.StatusOK, rec)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not seen recently"})
}
