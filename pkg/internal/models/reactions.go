package models

import "time"

// NoteReaction is one user's reaction to a note. Type holds the reaction
// text, either a unicode emoji or a custom one written as :name@host:.
type NoteReaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	User      NoteUser  `json:"user"`
	Type      string    `json:"type"`
}

type ReactionCount struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

// UserList is a list owned by the signed in account, the source of listId for list timelines.
type UserList struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	UserIDs     []string  `json:"userIds"`
}
