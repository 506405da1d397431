package database

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.ServerConnection{},
	&models.TimelineConfig{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(
		append(
			AutoMaintainRange,
			&models.EmojiCacheEntry{},
		)...,
	); err != nil {
		return err
	}

	return nil
}
