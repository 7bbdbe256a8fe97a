package models

import "time"

// Writer types recorded on a ConversationTurn.
const (
	WriterHuman = "human"
	WriterAI    = "ai"
)

// ConversationTurn is one append-only record of a participant conversation:
// the player's own chat line or the output of one agent step.
type ConversationTurn struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Writer        string    `gorm:"size:64;not null;index"`
	WriterType    string    `gorm:"size:8;not null"` // "human" or "ai"
	ParticipantID string    `gorm:"size:64;index"`
	Content       string    `gorm:"column:message;type:text;not null"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

// TableName pins the table name used by the conversation ledger.
func (ConversationTurn) TableName() string {
	return "conversation_turns"
}
