package site

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const handoffHashKey = "handoff_hash"

// Settings manages installation-wide settings. The handoff hash namespaces
// handoff URLs to this installation; it is not a credential, and rotating it
// only invalidates in-flight handoff URLs.
type Settings interface {
	HandoffHash(ctx context.Context) (string, error)
	RotateHandoffHash(ctx context.Context) (string, error)
}

type settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) Settings {
	return &settings{db: db}
}

func (s *settings) HandoffHash(ctx context.Context) (string, error) {
	var row PlatformSetting
	err := s.db.WithContext(ctx).First(&row, "key = ?", handoffHashKey).Error
	if err == nil {
		return row.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	value, err := newHandoffHash()
	if err != nil {
		return "", err
	}
	row = PlatformSetting{Key: handoffHashKey, Value: value, UpdatedAt: time.Now().UTC()}
	// Concurrent first reads race to insert; the existing row wins.
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).First(&row, "key = ?", handoffHashKey).Error; err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *settings) RotateHandoffHash(ctx context.Context) (string, error) {
	value, err := newHandoffHash()
	if err != nil {
		return "", err
	}
	row := PlatformSetting{Key: handoffHashKey, Value: value, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return "", err
	}
	return value, nil
}

func newHandoffHash() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
