package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

type matchRecord struct {
	ID        string `gorm:"primaryKey"`
	GameType  string `gorm:"not null"`
	Phase     string `gorm:"index;not null"`
	Version   int64  `gorm:"not null"`
	State     []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (matchRecord) TableName() string { return "matches" }

// Postgres stores each match as one jsonb row. Save only touches the row
// if its version still matches, which is the compare-and-swap the engine
// relies on.
type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&matchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate matches: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (p *Postgres) Create(ctx context.Context, s *engine.MatchState) error {
	s.Version = 1
	data, err := engine.Marshal(s)
	if err != nil {
		return err
	}
	rec := matchRecord{
		ID:        s.ID,
		GameType:  s.GameType,
		Phase:     string(s.Phase),
		Version:   s.Version,
		State:     data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	err = p.db.WithContext(ctx).Create(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return engine.ErrMatchExists
	case err != nil:
		return fmt.Errorf("insert match %s: %w", s.ID, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, id string) (*engine.MatchState, error) {
	var rec matchRecord
	err := p.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, engine.ErrMatchNotFound
	case err != nil:
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}
	s, err := engine.Unmarshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	s.Version = rec.Version
	return s, nil
}

func (p *Postgres) Save(ctx context.Context, s *engine.MatchState) error {
	expected := s.Version
	s.Version = expected + 1
	data, err := engine.Marshal(s)
	if err != nil {
		s.Version = expected
		return err
	}
	res := p.db.WithContext(ctx).
		Model(&matchRecord{}).
		Where("id = ? AND version = ?", s.ID, expected).
		Updates(map[string]any{
			"phase":      string(s.Phase),
			"version":    s.Version,
			"state":      data,
			"updated_at": s.UpdatedAt,
		})
	if res.Error != nil {
		s.Version = expected
		return fmt.Errorf("update match %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.Version = expected
		var count int64
		if err := p.db.WithContext(ctx).Model(&matchRecord{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check match %s: %w", s.ID, err)
		}
		if count == 0 {
			return engine.ErrMatchNotFound
		}
		p.log.Debug("stale match write", zap.String("match_id", s.ID), zap.Int64("version", expected))
		return engine.ErrVersionConflict
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Delete(&matchRecord{}, "id = ?", id).Error
}

// ListByPhase returns the ids of matches in the given phase, e.g. to find
// playing matches a timeout scheduler should poll.
func (p *Postgres) ListByPhase(ctx context.Context, phase engine.Phase) ([]string, error) {
	var ids []string
	err := p.db.WithContext(ctx).Model(&matchRecord{}).Where("phase = ?", string(phase)).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
