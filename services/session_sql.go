package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// sessionRecord is the GORM model backing SQL session storage. Message
// history is stored as a JSON blob; the runtime always reads and writes
// whole sessions, so per-message rows buy nothing.
type sessionRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index:idx_sessions_user_updated,priority:1"`
	Messages  []byte `gorm:"type:bytes"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index:idx_sessions_user_updated,priority:2"`
}

func (sessionRecord) TableName() string { return "sessions" }

// SQLSessionHistory persists sessions through GORM. Supported drivers
// are sqlite (pure Go, via glebarez) and postgres.
type SQLSessionHistory struct {
	db  *gorm.DB
	cfg config.DatabaseConfig

	Now func() time.Time
}

// NewSQLSessionHistory creates the store. The connection is opened in
// Start so construction never blocks.
func NewSQLSessionHistory(cfg config.DatabaseConfig) *SQLSessionHistory {
	return &SQLSessionHistory{cfg: cfg, Now: time.Now}
}

// NewSQLSessionHistoryWithDB wraps an already opened GORM handle,
// mainly for tests.
func NewSQLSessionHistoryWithDB(db *gorm.DB) *SQLSessionHistory {
	return &SQLSessionHistory{db: db, Now: time.Now}
}

func (s *SQLSessionHistory) Name() string { return "session_history/sql" }

func (s *SQLSessionHistory) Start(ctx context.Context) error {
	if s.db == nil {
		dialector, err := s.dialector()
		if err != nil {
			return err
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if s.cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(s.cfg.MaxOpenConns)
		}
		if s.cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(s.cfg.MaxIdleConns)
		}
		if s.cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
		}
		s.db = db
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&sessionRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

func (s *SQLSessionHistory) dialector() (gorm.Dialector, error) {
	switch s.cfg.Driver {
	case "sqlite", "":
		return sqlite.Open(s.cfg.DSN()), nil
	case "postgres":
		return postgres.Open(s.cfg.DSN()), nil
	default:
		return nil, types.NewError(types.ErrBackendUnknown,
			"unsupported database driver: "+s.cfg.Driver)
	}
}

func (s *SQLSessionHistory) Stop(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLSessionHistory) Health(ctx context.Context) error {
	if s.db == nil {
		return types.NewError(types.ErrServiceUnhealthy, "database not started")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLSessionHistory) CreateSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if existing, err := s.GetSession(ctx, userID, sessionID); err == nil {
		return existing, nil
	}

	now := s.Now()
	rec := sessionRecord{
		ID:        sessionID,
		UserID:    userID,
		Messages:  []byte("[]"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}

	return &types.Session{
		ID:        sessionID,
		UserID:    userID,
		Messages:  []*types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLSessionHistory) GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, sessionID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errSessionNotFound(sessionID)
	}
	if err != nil {
		return nil, err
	}
	return recordToSession(&rec)
}

func (s *SQLSessionHistory) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, sessionID).
		Delete(&sessionRecord{}).Error
}

func (s *SQLSessionHistory) ListSessions(ctx context.Context, userID string) ([]*types.Session, error) {
	var recs []sessionRecord
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "created_at", "updated_at").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]*types.Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &types.Session{
			ID:        rec.ID,
			UserID:    rec.UserID,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	// Some drivers round timestamps; enforce the documented order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *SQLSessionHistory) AppendMessage(ctx context.Context, userID, sessionID string, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec sessionRecord
		err := tx.Where("user_id = ? AND id = ?", userID, sessionID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := s.Now()
			rec = sessionRecord{
				ID:        sessionID,
				UserID:    userID,
				Messages:  []byte("[]"),
				CreatedAt: now,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var history []*types.Message
		if len(rec.Messages) > 0 {
			if err := json.Unmarshal(rec.Messages, &history); err != nil {
				return fmt.Errorf("failed to decode session history: %w", err)
			}
		}
		history = append(history, msgs...)

		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to encode session history: %w", err)
		}

		return tx.Model(&sessionRecord{}).
			Where("user_id = ? AND id = ?", userID, sessionID).
			Updates(map[string]any{
				"messages":   data,
				"updated_at": s.Now(),
			}).Error
	})
}

func recordToSession(rec *sessionRecord) (*types.Session, error) {
	sess := &types.Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Messages:  []*types.Message{},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Messages) > 0 {
		if err := json.Unmarshal(rec.Messages, &sess.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode session history: %w", err)
		}
	}
	return sess, nil
}

var _ SessionHistoryService = (*SQLSessionHistory)(nil)
