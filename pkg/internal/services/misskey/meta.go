package misskey

import (
	"context"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

func (v *Client) Meta(ctx context.Context) (models.ServerMeta, error) {
	var meta models.ServerMeta
	err := v.Request(ctx, "meta", map[string]any{"detail": false}, &meta)
	return meta, err
}

// I returns the account the access token belongs to.
func (v *Client) I(ctx context.Context) (models.NoteUser, error) {
	var user models.NoteUser
	err := v.Request(ctx, "i", nil, &user)
	return user, err
}
