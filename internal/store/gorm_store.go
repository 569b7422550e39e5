package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"djuka/internal/convo"
)

var ErrClosed = errors.New("store closed")

type turnRow struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement:false"`
	TurnID    string    `gorm:"size:64;uniqueIndex;not null"`
	Sender    string    `gorm:"size:16;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (turnRow) TableName() string {
	return "turns"
}

func (r turnRow) toTurn() convo.Turn {
	return convo.Turn{
		ID:        r.TurnID,
		Text:      r.Text,
		Sender:    convo.Sender(r.Sender),
		Timestamp: r.CreatedAt.UTC(),
	}
}

// GormStore keeps the conversation in a single "turns" table ordered by
// sequence number.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &GormStore{db: db}
	if err := s.db.AutoMigrate(&turnRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *GormStore) Load(ctx context.Context) ([]convo.Turn, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var rows []turnRow
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	out := make([]convo.Turn, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTurn())
	}
	return out, nil
}

// Save replaces the stored log with turns.
func (s *GormStore) Save(ctx context.Context, turns []convo.Turn) error {
	if s.db == nil {
		return ErrClosed
	}

	rows := make([]turnRow, 0, len(turns))
	for i, t := range turns {
		rows = append(rows, turnRow{
			Seq:       int64(i + 1),
			TurnID:    t.ID,
			Sender:    string(t.Sender),
			Text:      t.Text,
			CreatedAt: t.Timestamp.UTC(),
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&turnRow{}).Error; err != nil {
			return fmt.Errorf("clear turns: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert turns: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}
