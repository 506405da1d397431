package models

import (
	"time"
)

const (
	NoteVisibilityPublic    = "public"
	NoteVisibilityHome      = "home"
	NoteVisibilityFollowers = "followers"
	NoteVisibilitySpecified = "specified"
)

// Note is the note payload as returned by a Misskey-compatible server.
// Ids are only unique within the server that issued them.
type Note struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Text       *string   `json:"text"`
	CW         *string   `json:"cw"`
	UserID     string    `json:"userId"`
	User       NoteUser  `json:"user"`
	Visibility string    `json:"visibility"`
	LocalOnly  bool      `json:"localOnly"`

	ReplyID  *string `json:"replyId"`
	RenoteID *string `json:"renoteId"`
	Reply    *Note   `json:"reply,omitempty"`
	Renote   *Note   `json:"renote,omitempty"`

	Files   []DriveFile `json:"files"`
	FileIDs []string    `json:"fileIds"`

	Reactions      map[string]int    `json:"reactions"`
	ReactionEmojis map[string]string `json:"reactionEmojis"`
	Emojis         map[string]string `json:"emojis"`

	RenoteCount  int    `json:"renoteCount"`
	RepliesCount int    `json:"repliesCount"`
	URI          string `json:"uri,omitempty"`
	URL          string `json:"url,omitempty"`
}

// IsPureRenote reports a renote without own content, rendered as the renoted note.
func (v Note) IsPureRenote() bool {
	return v.Renote != nil && v.Text == nil && v.CW == nil && len(v.FileIDs) == 0
}

// LocalEmojis merges the emoji maps embedded in the payload, the note's own entries win.
func (v Note) LocalEmojis() map[string]string {
	out := make(map[string]string, len(v.Emojis)+len(v.User.Emojis)+len(v.ReactionEmojis))
	for k, val := range v.ReactionEmojis {
		out[k] = val
	}
	for k, val := range v.User.Emojis {
		out[k] = val
	}
	for k, val := range v.Emojis {
		out[k] = val
	}
	return out
}

type NoteUser struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Name      string            `json:"name"`
	Host      string            `json:"host"`
	AvatarURL string            `json:"avatarUrl"`
	Emojis    map[string]string `json:"emojis"`
}

type DriveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	IsSensitive  bool   `json:"isSensitive"`
	Comment      string `json:"comment"`
}
