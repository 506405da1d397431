package misskey

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

const reactionPageLimit = 100

// Reactions lists the most recent reactions of a note.
func (v *Client) Reactions(ctx context.Context, noteID string) ([]models.NoteReaction, error) {
	var reactions []models.NoteReaction
	err := v.Request(ctx, "notes/reactions", map[string]any{
		"noteId": noteID,
		"limit":  reactionPageLimit,
	}, &reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions of %s: %w", noteID, err)
	}
	if reactions == nil {
		reactions = []models.NoteReaction{}
	}
	return reactions, nil
}

func (v *Client) React(ctx context.Context, noteID, reaction string) error {
	err := v.Request(ctx, "notes/reactions/create", map[string]any{
		"noteId":   noteID,
		"reaction": reaction,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to react to %s: %w", noteID, err)
	}
	return nil
}

// Unreact removes the account's reaction from a note.
func (v *Client) Unreact(ctx context.Context, noteID string) error {
	err := v.Request(ctx, "notes/reactions/delete", map[string]any{"noteId": noteID}, nil)
	if err != nil {
		return fmt.Errorf("failed to remove reaction from %s: %w", noteID, err)
	}
	return nil
}
