package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"emailbots/pkg/domain"
)

const migrateLockID int64 = 52915291

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BotModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "settings", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if a user email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBot stores or updates a bot. A unique index on email backs the
// collection-wide uniqueness invariant; violations map to ErrDuplicateEmail.
func (s *GormStore) SaveBot(b domain.Bot) error {
	model := botToModel(b)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "description", "forwarding_email", "updated_at"}),
	}).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	return err
}

// ListBots returns all bots ordered newest-created-first.
func (s *GormStore) ListBots() ([]domain.Bot, error) {
	return s.listBots()
}

// ListBotsByEmail returns bots with exactly the given email.
func (s *GormStore) ListBotsByEmail(email string) ([]domain.Bot, error) {
	return s.listBots("email = ?", email)
}

func (s *GormStore) listBots(conds ...any) ([]domain.Bot, error) {
	var models []BotModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Bot, 0, len(models))
	for _, m := range models {
		res = append(res, botFromModel(m))
	}
	return res, nil
}

// GetBot retrieves a bot by ID.
func (s *GormStore) GetBot(id string) (domain.Bot, bool, error) {
	var model BotModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Bot{}, false, nil
		}
		return domain.Bot{}, false, err
	}
	return botFromModel(model), true, nil
}

// DeleteBot removes a bot. Hard delete, no soft-delete column.
func (s *GormStore) DeleteBot(id string) error {
	return s.db.Delete(&BotModel{}, "id = ?", id).Error
}

// SetAssistantID attaches the provisioned assistant identifier to a bot.
func (s *GormStore) SetAssistantID(id, assistantID string) error {
	return s.db.Model(&BotModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"assistant_id": assistantID,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func userToModel(u domain.User) UserModel {
	settings, _ := json.Marshal(u.Settings)
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Settings:     settings,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	settings := domain.DefaultSettings()
	if len(m.Settings) > 0 {
		_ = json.Unmarshal(m.Settings, &settings)
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Settings:     settings,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func botToModel(b domain.Bot) BotModel {
	return BotModel{
		ID:              b.ID,
		OwnerID:         b.OwnerID,
		Name:            b.Name,
		Email:           b.Email,
		Description:     b.Description,
		ForwardingEmail: b.ForwardingEmail,
		AssistantID:     b.AssistantID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func botFromModel(m BotModel) domain.Bot {
	return domain.Bot{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		Name:            m.Name,
		Email:           m.Email,
		Description:     m.Description,
		ForwardingEmail: m.ForwardingEmail,
		AssistantID:     m.AssistantID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
