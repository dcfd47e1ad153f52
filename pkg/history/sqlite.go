package history

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
)

// SQLStore is the gorm-backed Gateway over sqlite.
type SQLStore struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ Gateway = (*SQLStore)(nil)

// Open opens (creating if needed) the sqlite database at path and
// migrates the chats table.
func Open(log *logger.Logger, path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&models.ChatExchange{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chats table: %w", err)
	}
	return &SQLStore{db: db, log: log.With("component", "history")}, nil
}

// NewSQLStore wraps an already-open gorm handle. Used by tests and by
// callers that manage the connection themselves.
func NewSQLStore(db *gorm.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, log: log.With("component", "history")}
}

func (s *SQLStore) Create(ctx context.Context, ownerID, sessionID int64, message, attachments string) (*models.ChatExchange, error) {
	row := &models.ChatExchange{
		OwnerID:     ownerID,
		SessionID:   sessionID,
		Message:     message,
		Response:    "",
		Attachments: attachments,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create exchange: %w", err)
	}
	return row, nil
}

func (s *SQLStore) Finalize(ctx context.Context, exchangeID uint, response string) error {
	res := s.db.WithContext(ctx).
		Model(&models.ChatExchange{}).
		Where("id = ?", exchangeID).
		Update("response", response)
	if res.Error != nil {
		return fmt.Errorf("finalize exchange %d: %w", exchangeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finalize exchange %d: no such row", exchangeID)
	}
	return nil
}

func (s *SQLStore) MostRecent(ctx context.Context, sessionID int64, n int) ([]models.ChatExchange, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []models.ChatExchange
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list recent exchanges: %w", err)
	}
	return out, nil
}

func (s *SQLStore) EnumerateAll(ctx context.Context, batchSize int, fn func(batch []models.ChatExchange) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	var rows []models.ChatExchange
	res := s.db.WithContext(ctx).
		Order("id ASC").
		FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
			return fn(rows)
		})
	if res.Error != nil {
		return fmt.Errorf("enumerate exchanges: %w", res.Error)
	}
	return nil
}
