package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/samber/lo"
)

func notesOf(ids ...string) []models.Note {
	return lo.Map(ids, func(id string, _ int) models.Note {
		return models.Note{ID: id}
	})
}

func noteIDs(notes []models.Note) []string {
	return lo.Map(notes, func(note models.Note, _ int) string {
		return note.ID
	})
}

type pageCall struct {
	endpoint string
	params   map[string]any
	untilID  string
}

type fakeStream struct {
	channel  string
	params   map[string]any
	handlers misskey.StreamHandlers

	lock     sync.Mutex
	disposed int
}

func (v *fakeStream) Dispose() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.disposed++
}

func (v *fakeStream) Disposed() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.disposed
}

func (v *fakeStream) push(note models.Note) {
	if v.Disposed() == 0 {
		v.handlers.OnNote(note)
	}
}

func (v *fakeStream) drop(err error) {
	if v.Disposed() == 0 {
		v.handlers.OnDisconnected(err)
	}
}

// fakeSource serves pages keyed by the untilId cursor, "" being the first page.
type fakeSource struct {
	lock      sync.Mutex
	pages     map[string][]models.Note
	pageErrs  map[string]error
	streamErr error
	// dropOnOpen reports a disconnect before OpenStream returns.
	dropOnOpen error
	gate       chan struct{}
	calls      []pageCall
	streams    []*fakeStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:    make(map[string][]models.Note),
		pageErrs: make(map[string]error),
	}
}

func (v *fakeSource) FetchPage(ctx context.Context, endpoint string, params map[string]any, untilID string) ([]models.Note, error) {
	v.lock.Lock()
	v.calls = append(v.calls, pageCall{endpoint: endpoint, params: params, untilID: untilID})
	gate := v.gate
	v.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v.lock.Lock()
	defer v.lock.Unlock()
	if err := v.pageErrs[untilID]; err != nil {
		return nil, err
	}
	return append([]models.Note{}, v.pages[untilID]...), nil
}

func (v *fakeSource) OpenStream(ctx context.Context, channel string, params map[string]any, handlers misskey.StreamHandlers) (FeedStream, error) {
	v.lock.Lock()
	if v.streamErr != nil {
		v.lock.Unlock()
		return nil, v.streamErr
	}
	stream := &fakeStream{channel: channel, params: params, handlers: handlers}
	v.streams = append(v.streams, stream)
	dropErr := v.dropOnOpen
	v.lock.Unlock()

	if dropErr != nil {
		handlers.OnDisconnected(dropErr)
	}
	return stream, nil
}

func (v *fakeSource) Calls() []pageCall {
	v.lock.Lock()
	defer v.lock.Unlock()
	return append([]pageCall{}, v.calls...)
}

func (v *fakeSource) Streams() []*fakeStream {
	v.lock.Lock()
	defer v.lock.Unlock()
	return append([]*fakeStream{}, v.streams...)
}

func (v *fakeSource) lastStream() *fakeStream {
	streams := v.Streams()
	if len(streams) == 0 {
		return nil
	}
	return streams[len(streams)-1]
}

// fakeWriter records uploads and note creations of the composer.
type fakeWriter struct {
	lock      sync.Mutex
	uploads   []string
	failOn    string
	createErr error
	created   []misskey.NoteCreateParams
}

func (v *fakeWriter) UploadFile(ctx context.Context, name, contentType string, content io.Reader) (models.DriveFile, error) {
	_, _ = io.Copy(io.Discard, content)
	v.lock.Lock()
	defer v.lock.Unlock()
	if name == v.failOn {
		return models.DriveFile{}, fmt.Errorf("upload rejected: %s", name)
	}
	v.uploads = append(v.uploads, name)
	return models.DriveFile{ID: "file-" + name, Name: name, Type: contentType}, nil
}

func (v *fakeWriter) CreateNote(ctx context.Context, params misskey.NoteCreateParams) (models.Note, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.createErr != nil {
		return models.Note{}, v.createErr
	}
	v.created = append(v.created, params)
	text := params.Text
	return models.Note{ID: fmt.Sprintf("created-%d", len(v.created)), Text: &text}, nil
}

type fakeEmojiSource struct {
	lock  sync.Mutex
	urls  map[string]*string
	err   error
	gate  chan struct{}
	calls int
}

func (v *fakeEmojiSource) EmojiURL(ctx context.Context, name string) (*string, error) {
	v.lock.Lock()
	v.calls++
	gate := v.gate
	v.lock.Unlock()
	if gate != nil {
		<-gate
	}
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return v.urls[name], nil
}

func (v *fakeEmojiSource) Calls() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.calls
}
