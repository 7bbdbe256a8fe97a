// Package conversation persists the append-only ledger of participant turns
// and serves bounded recent history for prompt construction.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/gepeto/internal/models"
	"gorm.io/gorm"
)

// StorageError reports a failed persistence call. Callers treat it as
// non-fatal: the turn proceeds without that record being durable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the process-wide conversation ledger. It is safe for concurrent
// use; each append is a single INSERT.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB    *gorm.DB
	Clock func() time.Time // defaults to time.Now
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("conversation: store: db is required")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, now: now}, nil
}

// PutMessage appends one turn with a store-assigned timestamp. Timestamps
// are truncated to milliseconds so they compare the same before and after a
// round trip through a DATETIME(3) column.
func (s *Store) PutMessage(ctx context.Context, writer, writerType, content, participantID string) error {
	ts := stamp(s.now())
	turn := models.ConversationTurn{
		Writer:        writer,
		WriterType:    writerType,
		ParticipantID: participantID,
		Content:       content,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := s.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return &StorageError{Op: "put message", Err: err}
	}
	return nil
}

// GetRecentMessages returns at most limit turns written by or addressed to
// participantID, oldest first. An empty participantID (anonymous context)
// or a non-positive limit yields an empty slice.
func (s *Store) GetRecentMessages(ctx context.Context, participantID string, limit int) ([]models.ConversationTurn, error) {
	if participantID == "" || limit <= 0 {
		return []models.ConversationTurn{}, nil
	}

	var turns []models.ConversationTurn
	result := s.db.WithContext(ctx).
		Where("writer = ? OR participant_id = ?", participantID, participantID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&turns)
	if result.Error != nil {
		return nil, &StorageError{Op: "get recent messages", Err: result.Error}
	}

	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Touch bumps updated_at on an existing turn. It is the only mutation the
// ledger permits.
func (s *Store) Touch(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.ConversationTurn{}).
		Where("id = ?", id).
		Update("updated_at", stamp(s.now()))
	if result.Error != nil {
		return &StorageError{Op: "touch", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &StorageError{Op: "touch", Err: fmt.Errorf("turn %d not found", id)}
	}
	return nil
}

// Count returns the number of turns written by or addressed to participantID.
func (s *Store) Count(ctx context.Context, participantID string) (int64, error) {
	var n int64
	result := s.db.WithContext(ctx).Model(&models.ConversationTurn{}).
		Where("writer = ? OR participant_id = ?", participantID, participantID).
		Count(&n)
	if result.Error != nil {
		return 0, &StorageError{Op: "count", Err: result.Error}
	}
	return n, nil
}

// Since returns up to limit turns for participantID with an ID greater than
// afterID, in insertion order.
func (s *Store) Since(ctx context.Context, participantID string, afterID uint, limit int) ([]models.ConversationTurn, error) {
	if participantID == "" || limit <= 0 {
		return []models.ConversationTurn{}, nil
	}
	var turns []models.ConversationTurn
	result := s.db.WithContext(ctx).
		Where("(writer = ? OR participant_id = ?) AND id > ?", participantID, participantID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&turns)
	if result.Error != nil {
		return nil, &StorageError{Op: "since", Err: result.Error}
	}
	return turns, nil
}

func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
