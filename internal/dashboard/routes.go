package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/gepeto/internal/conversation"
	"github.com/zulandar/gepeto/internal/models"
	"gorm.io/gorm"
)

const (
	defaultTurnLimit = 20
	maxTurnLimit     = 200
)

// turnView is the JSON shape of one ledger record.
type turnView struct {
	ID            uint      `json:"id"`
	Writer        string    `json:"writer"`
	WriterType    string    `json:"writer_type"`
	ParticipantID string    `json:"participant_id"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewTurns(turns []models.ConversationTurn) []turnView {
	out := make([]turnView, len(turns))
	for i, t := range turns {
		out[i] = turnView{
			ID:            t.ID,
			Writer:        t.Writer,
			WriterType:    t.WriterType,
			ParticipantID: t.ParticipantID,
			Message:       t.Content,
			CreatedAt:     t.CreatedAt,
		}
	}
	return out
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, store *conversation.Store, poll time.Duration) {
	router.GET("/healthz", handleHealth(db))

	api := router.Group("/api")
	api.GET("/participants", handleParticipants(db))
	api.GET("/participants/:id/turns", handleTurns(store))
	api.GET("/participants/:id/stream", handleStream(store, poll))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleParticipants(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		rows, err := ParticipantSummary(c.Request.Context(), db, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleTurns(store *conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		turns, err := store.GetRecentMessages(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, viewTurns(turns))
	}
}

// parseLimit reads ?limit=N. It writes a 400 and returns false when the
// value is not an integer in [1, maxTurnLimit].
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultTurnLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxTurnLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and " + strconv.Itoa(maxTurnLimit)})
		return 0, false
	}
	return n, true
}
