package misskey

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

// UserLists returns the lists owned by the signed in account.
func (v *Client) UserLists(ctx context.Context) ([]models.UserList, error) {
	var lists []models.UserList
	if err := v.Request(ctx, "users/lists/list", nil, &lists); err != nil {
		return nil, fmt.Errorf("failed to list user lists: %w", err)
	}
	if lists == nil {
		lists = []models.UserList{}
	}
	return lists, nil
}
