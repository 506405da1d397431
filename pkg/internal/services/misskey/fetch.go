package misskey

import (
	"context"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

// FetchPage loads one page of notes, newest first. An empty page means the end of the timeline.
func (v *Client) FetchPage(ctx context.Context, endpoint string, params map[string]any, untilID string) ([]models.Note, error) {
	payload := map[string]any{
		"limit": v.pageLimit,
	}
	for k, val := range params {
		payload[k] = val
	}
	if len(untilID) > 0 {
		payload["untilId"] = untilID
	}

	var notes []models.Note
	if err := v.Request(ctx, endpoint, payload, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}
