package models

import "time"

// EmojiCacheEntry persists one resolved custom emoji. A nil URL records a confirmed miss.
type EmojiCacheEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Host      string    `json:"host" gorm:"uniqueIndex:idx_emoji_host_name"`
	Name      string    `json:"name" gorm:"uniqueIndex:idx_emoji_host_name"`
	URL       *string   `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomEmoji is an entry of a server's emoji catalog, used by the picker.
type CustomEmoji struct {
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Category string   `json:"category"`
	Aliases  []string `json:"aliases"`
}

type ServerMeta struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
	URI         string `json:"uri"`
}
