package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/archive"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type HistorySource interface {
	History(ctx context.Context, room domain.RoomName, limit int) ([]archive.Message, error)
}

type handlers struct {
	orch    *app.Orchestrator
	history HistorySource
}

type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type MessageResponse struct {
	SubjectID int64     `json:"subject_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.orch.Registry.Count(),
		"rooms":    len(h.orch.Rooms.List()),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.orch.Rooms.List()
	out := make([]RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomResponse{Name: string(r.Name), Members: r.MemberCount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	c.JSON(http.StatusOK, out)
}

func (h *handlers) roomMembers(c *gin.Context) {
	members, ok := h.orch.Rooms.Members(domain.ParseRoomName(c.Param("name")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *handlers) roomHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive disabled"})
		return
	}
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	room := domain.ParseRoomName(c.Param("name"))
	msgs, err := h.history.History(c.Request.Context(), room, q.Limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{SubjectID: m.SubjectID, Text: m.Body, CreatedAt: m.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}
