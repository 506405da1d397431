package misskey

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

type NoteCreateParams struct {
	Text       string
	CW         string
	Visibility string
	LocalOnly  bool
	ReplyID    string
	RenoteID   string
	FileIDs    []string
}

func (p NoteCreateParams) payload() map[string]any {
	out := map[string]any{
		"localOnly": p.LocalOnly,
	}
	if len(p.Text) > 0 {
		out["text"] = p.Text
	}
	if len(p.CW) > 0 {
		out["cw"] = p.CW
	}
	if len(p.Visibility) > 0 {
		out["visibility"] = p.Visibility
	}
	if len(p.ReplyID) > 0 {
		out["replyId"] = p.ReplyID
	}
	if len(p.RenoteID) > 0 {
		out["renoteId"] = p.RenoteID
	}
	if len(p.FileIDs) > 0 {
		out["fileIds"] = p.FileIDs
	}
	return out
}

func (v *Client) CreateNote(ctx context.Context, params NoteCreateParams) (models.Note, error) {
	var resp struct {
		CreatedNote models.Note `json:"createdNote"`
	}
	if err := v.Request(ctx, "notes/create", params.payload(), &resp); err != nil {
		return resp.CreatedNote, fmt.Errorf("failed to create note: %w", err)
	}
	return resp.CreatedNote, nil
}
