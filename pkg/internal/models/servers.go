package models

import (
	"net/url"
	"strings"
	"time"
)

// ServerConnection is a Misskey-compatible server the user signed in to through MiAuth.
type ServerConnection struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Origin      string `json:"origin" gorm:"index"`
	AccessToken string `json:"-"`
	IsActive    bool   `json:"is_active"`

	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	ServerName string `json:"server_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v ServerConnection) HasToken() bool {
	return len(strings.TrimSpace(v.AccessToken)) > 0
}

// Host returns the bare host of the origin, the form Misskey uses in user.host.
func (v ServerConnection) Host() string {
	return OriginHost(v.Origin)
}

// NormalizeOrigin adds a scheme when missing, drops the trailing slash and lowercases the result.
func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if len(origin) == 0 {
		return ""
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		origin = "https://" + origin
	}
	return strings.ToLower(strings.TrimRight(origin, "/"))
}

func OriginHost(origin string) string {
	parsed, err := url.Parse(NormalizeOrigin(origin))
	if err != nil {
		return ""
	}
	return parsed.Host
}
