package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	ErrValidation    = errors.New("invalid note")
	ErrPartialUpload = errors.New("attachment upload failed")
	ErrSubmitting    = errors.New("another note is being submitted")
)

type ComposeMode string

const (
	ComposeCreate ComposeMode = "create"
	ComposeReply  ComposeMode = "reply"
	ComposeQuote  ComposeMode = "quote"
	ComposeRenote ComposeMode = "renote"
)

type Draft struct {
	Mode       ComposeMode  `json:"mode" validate:"required,oneof=create reply quote renote"`
	Text       string       `json:"text" validate:"max=3000"`
	CW         string       `json:"cw" validate:"max=100"`
	Target     *models.Note `json:"target,omitempty"`
	ServerID   string       `json:"server_id" validate:"required"`
	Visibility string       `json:"visibility" validate:"omitempty,oneof=public home followers specified"`
	LocalOnly  bool         `json:"local_only"`
	Files      []Attachment `json:"files,omitempty" validate:"max=16,dive"`
}

func (v Draft) hasContent() bool {
	return len(strings.TrimSpace(v.Text)) > 0 || len(v.Files) > 0
}

// NoteWriter is the part of the server client the composer needs.
type NoteWriter interface {
	UploadFile(ctx context.Context, name, contentType string, content io.Reader) (models.DriveFile, error)
	CreateNote(ctx context.Context, params misskey.NoteCreateParams) (models.Note, error)
}

type ServerDirectory interface {
	GetServer(id string) (models.ServerConnection, error)
	GetServers() ([]models.ServerConnection, error)
}

var draftValidator = newDraftValidator()

func newDraftValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		draft := sl.Current().Interface().(Draft)
		switch draft.Mode {
		case ComposeCreate:
			if !draft.hasContent() {
				sl.ReportError(draft.Text, "Text", "text", "required_without_files", "")
			}
		case ComposeReply:
			if draft.Target == nil {
				sl.ReportError(draft.Target, "Target", "target", "required", "")
			}
			if !draft.hasContent() {
				sl.ReportError(draft.Text, "Text", "text", "required_without_files", "")
			}
		case ComposeQuote:
			if draft.Target == nil {
				sl.ReportError(draft.Target, "Target", "target", "required", "")
			}
		case ComposeRenote:
			if draft.Target == nil {
				sl.ReportError(draft.Target, "Target", "target", "required", "")
			}
			if draft.hasContent() || len(draft.CW) > 0 {
				sl.ReportError(draft.Text, "Text", "text", "excluded", "")
			}
		}
	}, Draft{})
	return validate
}

// Composer keeps the draft of the note being written and submits it to the chosen server.
// A created note is never inserted into a feed, it shows up when the stream echoes it back.
type Composer struct {
	servers   ServerDirectory
	writerFor func(models.ServerConnection) NoteWriter

	maxDimension int
	quality      int

	lock       sync.Mutex
	draft      Draft
	lastServer string
	submitting bool
}

func NewComposer(servers ServerDirectory, writerFor func(models.ServerConnection) NoteWriter) *Composer {
	return &Composer{
		servers:      servers,
		writerFor:    writerFor,
		maxDimension: lo.Ternary(viper.IsSet("composer.max_image_dimension"), viper.GetInt("composer.max_image_dimension"), 2048),
		quality:      lo.Ternary(viper.IsSet("composer.jpeg_quality"), viper.GetInt("composer.jpeg_quality"), 85),
		draft:        Draft{Mode: ComposeCreate, Visibility: models.NoteVisibilityPublic},
	}
}

func (v *Composer) Draft() Draft {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.draft
}

func (v *Composer) SetDraft(draft Draft) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.draft = draft
}

// PickServer chooses the server a new note goes to. The server of the note being
// answered wins, then preferred, then the last used one, then the first signed in server.
func (v *Composer) PickServer(targetOrigin, preferred string) (models.ServerConnection, bool) {
	servers, err := v.servers.GetServers()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list servers for composer...")
		return models.ServerConnection{}, false
	}
	usable := lo.Filter(servers, func(item models.ServerConnection, _ int) bool {
		return item.IsActive && item.HasToken()
	})

	if len(targetOrigin) > 0 {
		origin := models.NormalizeOrigin(targetOrigin)
		if server, ok := lo.Find(usable, func(item models.ServerConnection) bool { return item.Origin == origin }); ok {
			return server, true
		}
	}

	v.lock.Lock()
	last := v.lastServer
	v.lock.Unlock()
	for _, id := range []string{preferred, last} {
		if len(id) == 0 {
			continue
		}
		if server, ok := lo.Find(usable, func(item models.ServerConnection) bool { return item.ID == id }); ok {
			return server, true
		}
	}

	return lo.First(usable)
}

// Submit stores draft as the current draft and posts it. On success the draft is reset,
// keeping the server and visibility. On failure it is left intact for a retry.
func (v *Composer) Submit(ctx context.Context, draft Draft) (models.Note, error) {
	v.lock.Lock()
	if v.submitting {
		v.lock.Unlock()
		return models.Note{}, ErrSubmitting
	}
	v.draft = draft
	v.submitting = true
	v.lock.Unlock()

	note, err := v.submit(ctx, draft)

	v.lock.Lock()
	v.submitting = false
	if err == nil {
		v.draft = Draft{Mode: ComposeCreate, ServerID: draft.ServerID, Visibility: draft.Visibility}
		v.lastServer = draft.ServerID
	}
	v.lock.Unlock()

	switch {
	case err == nil:
		metrics.NoteSubmissions.WithLabelValues("created").Inc()
	case errors.Is(err, ErrValidation):
		metrics.NoteSubmissions.WithLabelValues("invalid").Inc()
	case errors.Is(err, ErrPartialUpload):
		metrics.NoteSubmissions.WithLabelValues("upload_failed").Inc()
	default:
		metrics.NoteSubmissions.WithLabelValues("rejected").Inc()
	}
	return note, err
}

func (v *Composer) submit(ctx context.Context, draft Draft) (models.Note, error) {
	if err := draftValidator.Struct(draft); err != nil {
		return models.Note{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	server, err := v.servers.GetServer(draft.ServerID)
	if err != nil {
		return models.Note{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !server.IsActive || !server.HasToken() {
		return models.Note{}, fmt.Errorf("%w: server %s is not signed in", ErrValidation, server.Origin)
	}

	writer := v.writerFor(server)
	fileIDs, err := v.upload(ctx, writer, draft.Files)
	if err != nil {
		return models.Note{}, err
	}

	params := misskey.NoteCreateParams{
		CW:         strings.TrimSpace(draft.CW),
		Visibility: lo.Ternary(len(draft.Visibility) > 0, draft.Visibility, models.NoteVisibilityPublic),
		LocalOnly:  draft.LocalOnly,
		FileIDs:    fileIDs,
	}
	if draft.Mode != ComposeRenote {
		params.Text = strings.TrimSpace(draft.Text)
	}
	if draft.Target != nil {
		// A pure renote carries no content of its own, act on the renoted note instead.
		target := lo.Ternary(draft.Target.IsPureRenote(), draft.Target.Renote, draft.Target)
		switch draft.Mode {
		case ComposeReply:
			params.ReplyID = target.ID
		case ComposeQuote, ComposeRenote:
			params.RenoteID = target.ID
		}
	}

	note, err := writer.CreateNote(ctx, params)
	if err != nil {
		log.Warn().Err(err).Str("server", server.Origin).Msg("Failed to submit note...")
		return models.Note{}, err
	}
	log.Info().Str("server", server.Origin).Str("note", note.ID).Msg("Note submitted.")
	return note, nil
}

// upload sends every attachment in parallel and fails as a whole when any of them fails.
func (v *Composer) upload(ctx context.Context, writer NoteWriter, files []Attachment) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	ids := make([]string, len(files))
	eg, ctx := errgroup.WithContext(ctx)
	for idx, file := range files {
		eg.Go(func() error {
			if file.IsImage() {
				if compressed, err := CompressImage(file, v.maxDimension, v.quality); err != nil {
					log.Warn().Err(err).Str("file", file.Name).Msg("Failed to compress image, uploading original...")
				} else {
					file = compressed
				}
			}
			uploaded, err := writer.UploadFile(ctx, file.Name, file.ContentType, bytes.NewReader(file.Data))
			if err != nil {
				return err
			}
			ids[idx] = uploaded.ID
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPartialUpload, err)
	}
	return ids, nil
}
