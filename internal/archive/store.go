// Package archive records delivered chat messages.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const MaxHistory = 100

var ErrEmptyRoom = errors.New("room is required")

// Archiver durably records one delivered message.
type Archiver interface {
	Record(ctx context.Context, subject domain.SubjectID, room domain.RoomName, text string) error
}

// Message is the persisted form of a delivered chat message.
type Message struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	SubjectID int64     `gorm:"not null;index" json:"subject_id"`
	Room      string    `gorm:"size:100;not null;index:idx_room_created,priority:1" json:"room"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index:idx_room_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// Store is the gorm-backed Archiver.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenSQLite opens the database at dsn and migrates the message table.
func OpenSQLite(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive database: %w", err)
	}
	return NewStore(db), nil
}

func (s *Store) Record(ctx context.Context, subject domain.SubjectID, room domain.RoomName, text string) error {
	if room == "" {
		return ErrEmptyRoom
	}
	msg := &Message{
		ID:        uuid.NewString(),
		SubjectID: int64(subject),
		Room:      string(room),
		Body:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// History returns up to limit most recent messages of a room, oldest first.
func (s *Store) History(ctx context.Context, room domain.RoomName, limit int) ([]Message, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	var out []Message
	err := s.db.WithContext(ctx).
		Where("room = ?", string(room)).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
