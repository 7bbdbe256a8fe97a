package dashboard

import (
	"context"
	"fmt"

	"github.com/zulandar/gepeto/internal/models"
	"gorm.io/gorm"
)

// ParticipantRow summarizes one participant's ledger.
type ParticipantRow struct {
	ID         string `json:"id"`
	Turns      int64  `json:"turns"`
	LastTurnID uint   `json:"last_turn_id"`
}

// ParticipantSummary returns participants ordered by most recent activity.
func ParticipantSummary(ctx context.Context, db *gorm.DB, limit int) ([]ParticipantRow, error) {
	rows := []ParticipantRow{}
	err := db.WithContext(ctx).Model(&models.ConversationTurn{}).
		Select("participant_id AS id, COUNT(*) AS turns, MAX(id) AS last_turn_id").
		Where("participant_id <> ?", "").
		Group("participant_id").
		Order("last_turn_id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: participant summary: %w", err)
	}
	return rows, nil
}
