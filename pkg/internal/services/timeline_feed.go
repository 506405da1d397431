package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrFeedDestroyed = errors.New("feed has been destroyed")

type FeedStream interface {
	Dispose()
}

// FeedSource is the part of the server client a feed needs.
type FeedSource interface {
	FetchPage(ctx context.Context, endpoint string, params map[string]any, untilID string) ([]models.Note, error)
	OpenStream(ctx context.Context, channel string, params map[string]any, handlers misskey.StreamHandlers) (FeedStream, error)
}

type FeedState int

const (
	FeedIdle FeedState = iota
	FeedLoading
	FeedReady
	FeedLoadingMore
	FeedDisconnected
	FeedReconnecting
	FeedDestroyed
)

func (v FeedState) String() string {
	switch v {
	case FeedIdle:
		return "idle"
	case FeedLoading:
		return "loading"
	case FeedReady:
		return "ready"
	case FeedLoadingMore:
		return "loading_more"
	case FeedDisconnected:
		return "disconnected"
	case FeedReconnecting:
		return "reconnecting"
	default:
		return "destroyed"
	}
}

type FeedSnapshot struct {
	TimelineID      string        `json:"timeline_id"`
	State           string        `json:"state"`
	Notes           []models.Note `json:"notes"`
	HasMore         bool          `json:"has_more"`
	IsLoading       bool          `json:"is_loading"`
	StreamConnected bool          `json:"stream_connected"`
	Error           string        `json:"error,omitempty"`
	Err             error         `json:"-"`
}

type streamAttempt struct {
	lost bool
	err  error
}

// Feed is the live, paginated note list of one timeline config.
// Notes are newest first and unique by id. Realtime notes are prepended,
// older pages are appended.
type Feed struct {
	config   models.TimelineConfig
	kind     models.TimelineType
	source   FeedSource
	onChange func(*Feed)

	ctx    context.Context
	cancel context.CancelFunc

	lock      sync.Mutex
	state     FeedState
	notes     []models.Note
	index     map[string]struct{}
	hasMore   bool
	loading   bool
	loadErr   error
	streamErr error
	// authFailed stops the feed from opening streams until it is recreated.
	authFailed bool
	connected  bool
	stream     FeedStream
	attempt    *streamAttempt

	disposeOnce sync.Once
}

type FeedOption func(*Feed)

// WithChangeHook registers fn to run after each state change, outside the feed lock.
func WithChangeHook(fn func(*Feed)) FeedOption {
	return func(v *Feed) { v.onChange = fn }
}

func NewFeed(config models.TimelineConfig, kind models.TimelineType, source FeedSource, opts ...FeedOption) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	feed := &Feed{
		config:  config,
		kind:    kind,
		source:  source,
		ctx:     ctx,
		cancel:  cancel,
		state:   FeedIdle,
		index:   make(map[string]struct{}),
		hasMore: true,
	}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

func (v *Feed) ID() string {
	return v.config.ID
}

func (v *Feed) Config() models.TimelineConfig {
	return v.config
}

func (v *Feed) changed() {
	if v.onChange != nil {
		v.onChange(v)
	}
}

func (v *Feed) pageRequest() (string, map[string]any) {
	endpoint, params := v.kind.Endpoint()
	params = lo.Assign(params)
	settings := v.config.Settings.Data()
	if settings.WithReplies {
		params["withReplies"] = true
	}
	if settings.WithFiles {
		params["withFiles"] = true
	}
	return endpoint, params
}

func (v *Feed) fetchPage(ctx context.Context, untilID string) ([]models.Note, error) {
	endpoint, params := v.pageRequest()
	start := time.Now()
	notes, err := v.source.FetchPage(ctx, endpoint, params, untilID)
	metrics.PageFetches.WithLabelValues(lo.Ternary(err == nil, "ok", "error")).Observe(time.Since(start).Seconds())
	return notes, err
}

// Start runs the initial load in the background.
func (v *Feed) Start() {
	go v.Init(v.ctx)
}

// Init loads the first page and then opens the stream, unless the first page failed on authentication.
// It only acts on an idle feed.
func (v *Feed) Init(ctx context.Context) {
	v.lock.Lock()
	if v.state != FeedIdle {
		v.lock.Unlock()
		return
	}
	v.state = FeedLoading
	v.loading = true
	v.lock.Unlock()
	v.changed()

	notes, err := v.fetchPage(ctx, "")

	v.lock.Lock()
	if v.state == FeedDestroyed {
		v.lock.Unlock()
		return
	}
	v.loading = false
	v.state = FeedReady
	if err != nil {
		v.fail(err)
	} else {
		v.replaceNotes(notes)
	}
	v.lock.Unlock()
	v.changed()

	v.connectStream(ctx)
}

// fail records a page error, callers hold the lock.
func (v *Feed) fail(err error) {
	v.loadErr = err
	if misskey.IsAuthError(err) {
		v.authFailed = true
	}
	log.Warn().Err(err).Str("timeline", v.config.ID).Msg("Failed to load timeline page...")
}

func (v *Feed) replaceNotes(notes []models.Note) {
	v.notes = make([]models.Note, 0, len(notes))
	v.index = make(map[string]struct{}, len(notes))
	v.appendNotes(notes)
	v.hasMore = len(notes) > 0
	v.loadErr = nil
}

// appendNotes adds notes after the current ones, skipping ids already present.
func (v *Feed) appendNotes(notes []models.Note) {
	for _, note := range notes {
		if _, ok := v.index[note.ID]; ok {
			continue
		}
		v.index[note.ID] = struct{}{}
		v.notes = append(v.notes, note)
	}
}

func (v *Feed) connectStream(ctx context.Context) {
	channel, params, ok := v.kind.Channel()
	if !ok {
		return
	}

	v.lock.Lock()
	if v.state == FeedDestroyed || v.authFailed {
		v.lock.Unlock()
		return
	}
	attempt := &streamAttempt{}
	v.attempt = attempt
	v.lock.Unlock()

	stream, err := v.source.OpenStream(ctx, channel, params, misskey.StreamHandlers{
		OnNote:         v.handleStreamNote,
		OnDisconnected: func(err error) { v.handleDisconnected(attempt, err) },
	})

	v.lock.Lock()
	if v.state == FeedDestroyed || v.attempt != attempt {
		v.lock.Unlock()
		if stream != nil {
			stream.Dispose()
		}
		return
	}
	if err != nil {
		v.streamErr = err
		v.connected = false
		if misskey.IsAuthError(err) {
			v.authFailed = true
		}
		if v.state == FeedReconnecting {
			v.state = FeedDisconnected
		}
		v.lock.Unlock()
		log.Warn().Err(err).Str("timeline", v.config.ID).Str("channel", channel).Msg("Failed to open timeline stream...")
		v.changed()
		return
	}

	v.stream = stream
	if attempt.lost {
		v.connected = false
		v.streamErr = attempt.err
		v.state = FeedDisconnected
	} else {
		v.connected = true
		v.streamErr = nil
		if v.state == FeedReconnecting || v.state == FeedDisconnected {
			v.state = lo.Ternary(v.loading, FeedLoadingMore, FeedReady)
		}
		metrics.ConnectedStreams.Inc()
	}
	v.lock.Unlock()
	v.changed()
}

func (v *Feed) handleStreamNote(note models.Note) {
	v.lock.Lock()
	if v.state == FeedDestroyed {
		v.lock.Unlock()
		metrics.StreamNotes.WithLabelValues("discarded").Inc()
		return
	}
	if _, ok := v.index[note.ID]; ok {
		v.lock.Unlock()
		metrics.StreamNotes.WithLabelValues("duplicate").Inc()
		return
	}
	v.index[note.ID] = struct{}{}
	v.notes = append([]models.Note{note}, v.notes...)
	v.lock.Unlock()

	metrics.StreamNotes.WithLabelValues("merged").Inc()
	v.changed()
}

func (v *Feed) handleDisconnected(attempt *streamAttempt, err error) {
	v.lock.Lock()
	attempt.lost = true
	attempt.err = err
	if v.state == FeedDestroyed || v.attempt != attempt || !v.connected {
		v.lock.Unlock()
		return
	}
	v.connected = false
	v.streamErr = err
	v.state = FeedDisconnected
	v.lock.Unlock()

	metrics.ConnectedStreams.Dec()
	metrics.StreamDisconnects.Inc()
	v.changed()
}

// LoadMore appends the next older page. It is a no-op while a page is loading
// or after the end of the timeline was reached. A failed page keeps hasMore as it was.
func (v *Feed) LoadMore(ctx context.Context) {
	v.lock.Lock()
	if v.state == FeedDestroyed || v.state == FeedIdle || !v.hasMore || v.loading {
		v.lock.Unlock()
		return
	}
	v.loading = true
	if v.state == FeedReady {
		v.state = FeedLoadingMore
	}
	untilID := ""
	if len(v.notes) > 0 {
		untilID = v.notes[len(v.notes)-1].ID
	}
	v.lock.Unlock()
	v.changed()

	notes, err := v.fetchPage(ctx, untilID)

	v.lock.Lock()
	if v.state == FeedDestroyed {
		v.lock.Unlock()
		return
	}
	v.loading = false
	if v.state == FeedLoadingMore {
		v.state = FeedReady
	}
	if err != nil {
		v.fail(err)
	} else {
		v.appendNotes(notes)
		v.hasMore = len(notes) > 0
		v.loadErr = nil
	}
	v.lock.Unlock()
	v.changed()
}

// Refresh clears the error and replaces the notes with a fresh first page.
func (v *Feed) Refresh(ctx context.Context) {
	v.lock.Lock()
	if v.state == FeedDestroyed || v.state == FeedIdle || v.loading {
		v.lock.Unlock()
		return
	}
	v.loading = true
	v.loadErr = nil
	if v.state == FeedReady {
		v.state = FeedLoading
	}
	v.lock.Unlock()
	v.changed()

	notes, err := v.fetchPage(ctx, "")

	v.lock.Lock()
	if v.state == FeedDestroyed {
		v.lock.Unlock()
		return
	}
	v.loading = false
	if v.state == FeedLoading {
		v.state = FeedReady
	}
	if err != nil {
		v.fail(err)
	} else {
		v.replaceNotes(notes)
	}
	v.lock.Unlock()
	v.changed()
}

// Reconnect opens a new stream after the previous one was lost.
func (v *Feed) Reconnect(ctx context.Context) error {
	if _, _, ok := v.kind.Channel(); !ok {
		return nil
	}

	v.lock.Lock()
	switch {
	case v.state == FeedDestroyed:
		v.lock.Unlock()
		return ErrFeedDestroyed
	case v.authFailed:
		v.lock.Unlock()
		return misskey.ErrAuth
	case v.connected || v.state == FeedReconnecting || v.state == FeedIdle || v.state == FeedLoading:
		v.lock.Unlock()
		return nil
	}
	previous := v.stream
	v.stream = nil
	v.attempt = nil
	v.state = FeedReconnecting
	v.lock.Unlock()
	v.changed()

	if previous != nil {
		previous.Dispose()
	}
	v.connectStream(ctx)

	v.lock.Lock()
	defer v.lock.Unlock()
	if v.connected {
		return nil
	}
	return v.streamErr
}

// Dispose tears the feed down. Results of requests still in flight are discarded
// and no stream handler mutates the feed afterwards.
func (v *Feed) Dispose() {
	v.disposeOnce.Do(func() {
		v.lock.Lock()
		v.state = FeedDestroyed
		stream := v.stream
		wasConnected := v.connected
		v.stream = nil
		v.attempt = nil
		v.connected = false
		v.notes = nil
		v.index = nil
		v.lock.Unlock()

		v.cancel()
		if stream != nil {
			stream.Dispose()
		}
		if wasConnected {
			metrics.ConnectedStreams.Dec()
		}
		log.Debug().Str("timeline", v.config.ID).Msg("Timeline feed disposed.")
	})
}

func (v *Feed) Snapshot() FeedSnapshot {
	v.lock.Lock()
	defer v.lock.Unlock()

	err := lo.Ternary(v.streamErr != nil, v.streamErr, v.loadErr)
	snapshot := FeedSnapshot{
		TimelineID:      v.config.ID,
		State:           v.state.String(),
		Notes:           append([]models.Note{}, v.notes...),
		HasMore:         v.hasMore,
		IsLoading:       v.loading,
		StreamConnected: v.connected,
		Err:             err,
	}
	if err != nil {
		snapshot.Error = err.Error()
	}
	return snapshot
}

func (v *Feed) State() FeedState {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.state
}
