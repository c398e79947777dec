package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"Uncanny-Terrors/server/internal/config"
	"Uncanny-Terrors/server/internal/models"
)

// MySQLStore backs the save slot with a one-row-per-profile table; the
// document stays an opaque JSON blob.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.SaveRecord{}, &models.ProfileFlag{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) SaveGame(ctx context.Context, profileID string, document []byte) error {
	rec := models.SaveRecord{
		ProfileID: profileID,
		Document:  string(document),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to write save slot: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadGame(ctx context.Context, profileID string) ([]byte, error) {
	var rec models.SaveRecord
	err := s.db.WithContext(ctx).First(&rec, "profile_id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read save slot: %w", err)
	}
	return []byte(rec.Document), nil
}

func (s *MySQLStore) HasSave(ctx context.Context, profileID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SaveRecord{}).
		Where("profile_id = ?", profileID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check save slot: %w", err)
	}
	return count > 0, nil
}

func (s *MySQLStore) DeleteSave(ctx context.Context, profileID string) error {
	err := s.db.WithContext(ctx).
		Unscoped().
		Delete(&models.SaveRecord{}, "profile_id = ?", profileID).Error
	if err != nil {
		return fmt.Errorf("failed to delete save slot: %w", err)
	}
	return nil
}

func (s *MySQLStore) TutorialSeen(ctx context.Context, profileID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ProfileFlag{}).
		Where("profile_id = ? AND name = ?", profileID, tutorialFlag).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check tutorial flag: %w", err)
	}
	return count > 0, nil
}

func (s *MySQLStore) MarkTutorialSeen(ctx context.Context, profileID string) error {
	flag := models.ProfileFlag{ProfileID: profileID, Name: tutorialFlag}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&flag).Error
	if err != nil {
		return fmt.Errorf("failed to set tutorial flag: %w", err)
	}
	return nil
}
