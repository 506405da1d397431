package misskey

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

// EmojiURL resolves one custom emoji of this server.
// A nil url without error means the server does not know the emoji.
func (v *Client) EmojiURL(ctx context.Context, name string) (*string, error) {
	query := url.Values{"name": []string{name}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiURL("emoji")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		URL *string `json:"url"`
	}
	if err := v.do(req, "emoji", &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if resp.URL == nil || len(*resp.URL) == 0 {
		return nil, nil
	}
	return resp.URL, nil
}

// ListEmojis loads the whole custom emoji catalog of this server.
func (v *Client) ListEmojis(ctx context.Context) ([]models.CustomEmoji, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiURL("emojis"), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Emojis []models.CustomEmoji `json:"emojis"`
	}
	if err := v.do(req, "emojis", &resp); err != nil {
		return nil, fmt.Errorf("failed to list emojis: %w", err)
	}
	return resp.Emojis, nil
}
