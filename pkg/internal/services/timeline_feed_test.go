package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func homeConfig(id string) models.TimelineConfig {
	return models.TimelineConfig{ID: id, ServerID: "server1", Type: models.TimelineKindHome, IsVisible: true}
}

func newReadyFeed(t *testing.T, source *fakeSource, opts ...FeedOption) *Feed {
	t.Helper()
	feed := NewFeed(homeConfig("tl1"), models.HomeTimeline{}, source, opts...)
	feed.Init(context.Background())
	t.Cleanup(feed.Dispose)
	return feed
}

func TestFeedScenarioStreamThenPage(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n3", "n2", "n1")
	source.pages["n1"] = notesOf("n1", "n0")

	feed := newReadyFeed(t, source)
	snapshot := feed.Snapshot()
	assert.Equal(t, []string{"n3", "n2", "n1"}, noteIDs(snapshot.Notes))
	assert.True(t, snapshot.HasMore)
	assert.True(t, snapshot.StreamConnected)
	assert.Equal(t, "ready", snapshot.State)

	stream := source.lastStream()
	require.NotNil(t, stream)
	assert.Equal(t, "homeTimeline", stream.channel)

	stream.push(models.Note{ID: "n4"})
	assert.Equal(t, []string{"n4", "n3", "n2", "n1"}, noteIDs(feed.Snapshot().Notes))

	feed.LoadMore(context.Background())
	assert.Equal(t, []string{"n4", "n3", "n2", "n1", "n0"}, noteIDs(feed.Snapshot().Notes))

	calls := source.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "notes/timeline", calls[0].endpoint)
	assert.Equal(t, "", calls[0].untilID)
	assert.Equal(t, "n1", calls[1].untilID)
}

func TestFeedDropsDuplicateIds(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("a", "b")
	source.pages["b"] = notesOf("b", "c", "a")

	feed := newReadyFeed(t, source)
	stream := source.lastStream()
	stream.push(models.Note{ID: "x"})
	stream.push(models.Note{ID: "a"})
	stream.push(models.Note{ID: "x"})
	feed.LoadMore(context.Background())

	assert.Equal(t, []string{"x", "a", "b", "c"}, noteIDs(feed.Snapshot().Notes))
}

func TestFeedStreamOrderIsArrivalOrder(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("p1")

	feed := newReadyFeed(t, source)
	stream := source.lastStream()
	for i := 0; i < 5; i++ {
		stream.push(models.Note{ID: fmt.Sprintf("s%d", i)})
	}

	assert.Equal(t, []string{"s4", "s3", "s2", "s1", "s0", "p1"}, noteIDs(feed.Snapshot().Notes))
}

func TestFeedPaginationTerminates(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n2", "n1")
	source.pages["n1"] = []models.Note{}

	feed := newReadyFeed(t, source)
	feed.LoadMore(context.Background())
	assert.False(t, feed.Snapshot().HasMore)

	feed.LoadMore(context.Background())
	feed.LoadMore(context.Background())
	assert.Len(t, source.Calls(), 2)
}

func TestFeedEmptyFirstPageHasNoMore(t *testing.T) {
	source := newFakeSource()
	feed := newReadyFeed(t, source)

	snapshot := feed.Snapshot()
	assert.Empty(t, snapshot.Notes)
	assert.False(t, snapshot.HasMore)
}

func TestFeedFailedPageKeepsHasMore(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n2", "n1")
	source.pageErrs["n1"] = fmt.Errorf("%w: timeout", misskey.ErrNetwork)

	feed := newReadyFeed(t, source)
	feed.LoadMore(context.Background())

	snapshot := feed.Snapshot()
	assert.True(t, snapshot.HasMore)
	assert.False(t, snapshot.IsLoading)
	assert.Contains(t, snapshot.Error, "timeout")
	assert.Equal(t, []string{"n2", "n1"}, noteIDs(snapshot.Notes))

	source.lock.Lock()
	delete(source.pageErrs, "n1")
	source.pages["n1"] = notesOf("n0")
	source.lock.Unlock()

	feed.LoadMore(context.Background())
	snapshot = feed.Snapshot()
	assert.Empty(t, snapshot.Error)
	assert.Equal(t, []string{"n2", "n1", "n0"}, noteIDs(snapshot.Notes))
}

func TestFeedLoadMoreIsGuardedWhileLoading(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n2", "n1")
	source.pages["n1"] = notesOf("n0")

	feed := newReadyFeed(t, source)

	source.lock.Lock()
	source.gate = make(chan struct{})
	gate := source.gate
	source.lock.Unlock()

	done := make(chan struct{})
	go func() {
		feed.LoadMore(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return feed.Snapshot().IsLoading }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "loading_more", feed.Snapshot().State)
	feed.LoadMore(context.Background())
	close(gate)
	<-done

	assert.Len(t, source.Calls(), 2)
	assert.Equal(t, []string{"n2", "n1", "n0"}, noteIDs(feed.Snapshot().Notes))
	assert.Equal(t, "ready", feed.Snapshot().State)
}

func TestFeedInitialFailureStillOpensStream(t *testing.T) {
	source := newFakeSource()
	source.pageErrs[""] = fmt.Errorf("%w: unreachable", misskey.ErrNetwork)

	feed := newReadyFeed(t, source)

	snapshot := feed.Snapshot()
	assert.Equal(t, "ready", snapshot.State)
	assert.NotEmpty(t, snapshot.Error)
	assert.Len(t, source.Streams(), 1)
}

func TestFeedAuthErrorStopsStreaming(t *testing.T) {
	source := newFakeSource()
	source.pageErrs[""] = &misskey.APIError{Status: 401, Code: "AUTHENTICATION_FAILED"}

	feed := newReadyFeed(t, source)

	assert.Empty(t, source.Streams())
	assert.ErrorIs(t, feed.Reconnect(context.Background()), misskey.ErrAuth)
	assert.True(t, misskey.IsAuthError(feed.Snapshot().Err))
}

func TestFeedDisconnectKeepsNotes(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n2", "n1")
	source.pages["n1"] = notesOf("n0")

	feed := newReadyFeed(t, source)
	source.lastStream().drop(fmt.Errorf("%w: connection reset", misskey.ErrNetwork))

	snapshot := feed.Snapshot()
	assert.Equal(t, "disconnected", snapshot.State)
	assert.False(t, snapshot.StreamConnected)
	assert.Contains(t, snapshot.Error, "connection reset")
	assert.Equal(t, []string{"n2", "n1"}, noteIDs(snapshot.Notes))

	feed.LoadMore(context.Background())
	assert.Equal(t, []string{"n2", "n1", "n0"}, noteIDs(feed.Snapshot().Notes))
	assert.Equal(t, "disconnected", feed.Snapshot().State)
}

func TestFeedEarlyDisconnectKeepsError(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n1")
	source.dropOnOpen = fmt.Errorf("%w: closed during handshake", misskey.ErrNetwork)

	feed := newReadyFeed(t, source)

	snapshot := feed.Snapshot()
	assert.Equal(t, "disconnected", snapshot.State)
	assert.False(t, snapshot.StreamConnected)
	assert.Contains(t, snapshot.Error, "closed during handshake")
	assert.ErrorIs(t, snapshot.Err, misskey.ErrNetwork)
	assert.Equal(t, []string{"n1"}, noteIDs(snapshot.Notes))
}

func TestFeedReconnect(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n1")

	feed := newReadyFeed(t, source)
	first := source.lastStream()
	first.drop(fmt.Errorf("%w: gone", misskey.ErrNetwork))

	require.NoError(t, feed.Reconnect(context.Background()))
	assert.Equal(t, 1, first.Disposed())
	require.Len(t, source.Streams(), 2)

	snapshot := feed.Snapshot()
	assert.Equal(t, "ready", snapshot.State)
	assert.True(t, snapshot.StreamConnected)
	assert.Empty(t, snapshot.Error)

	source.lastStream().push(models.Note{ID: "n1"})
	source.lastStream().push(models.Note{ID: "n2"})
	assert.Equal(t, []string{"n2", "n1"}, noteIDs(feed.Snapshot().Notes))

	require.NoError(t, feed.Reconnect(context.Background()))
	assert.Len(t, source.Streams(), 2)
}

func TestFeedReconnectFailureStaysDisconnected(t *testing.T) {
	source := newFakeSource()
	feed := newReadyFeed(t, source)
	source.lastStream().drop(fmt.Errorf("%w: gone", misskey.ErrNetwork))

	source.lock.Lock()
	source.streamErr = fmt.Errorf("%w: refused", misskey.ErrNetwork)
	source.lock.Unlock()

	err := feed.Reconnect(context.Background())
	assert.ErrorIs(t, err, misskey.ErrNetwork)
	assert.Equal(t, "disconnected", feed.Snapshot().State)
}

func TestFeedRefreshReplacesNotes(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n2", "n1")

	feed := newReadyFeed(t, source)
	source.lastStream().push(models.Note{ID: "n3"})

	source.lock.Lock()
	source.pages[""] = notesOf("n4", "n3", "n2")
	source.lock.Unlock()

	feed.Refresh(context.Background())
	snapshot := feed.Snapshot()
	assert.Equal(t, []string{"n4", "n3", "n2"}, noteIDs(snapshot.Notes))
	assert.True(t, snapshot.HasMore)
}

func TestFeedUserTimelineHasNoStream(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("u1")

	config := models.TimelineConfig{
		ID:       "tl-user",
		Type:     models.TimelineKindUser,
		Settings: datatypes.NewJSONType(models.TimelineSettings{UserID: "user9", WithFiles: true}),
	}
	kind, err := config.Kind()
	require.NoError(t, err)

	feed := NewFeed(config, kind, source)
	defer feed.Dispose()
	feed.Init(context.Background())

	assert.Empty(t, source.Streams())
	calls := source.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "users/notes", calls[0].endpoint)
	assert.Equal(t, "user9", calls[0].params["userId"])
	assert.Equal(t, true, calls[0].params["withFiles"])
	assert.NoError(t, feed.Reconnect(context.Background()))
}

func TestFeedDisposeDiscardsLateResults(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n1")
	source.gate = make(chan struct{})

	feed := NewFeed(homeConfig("tl1"), models.HomeTimeline{}, source)
	done := make(chan struct{})
	go func() {
		feed.Init(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return len(source.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	feed.Dispose()
	close(source.gate)
	<-done

	snapshot := feed.Snapshot()
	assert.Equal(t, "destroyed", snapshot.State)
	assert.Empty(t, snapshot.Notes)
	assert.Empty(t, source.Streams())
}

func TestFeedDisposeUnsubscribesOnce(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = notesOf("n1")

	var changes atomic.Int32
	feed := NewFeed(homeConfig("tl1"), models.HomeTimeline{}, source, WithChangeHook(func(*Feed) { changes.Add(1) }))
	feed.Init(context.Background())
	stream := source.lastStream()

	feed.Dispose()
	feed.Dispose()
	assert.Equal(t, 1, stream.Disposed())

	before := changes.Load()
	stream.handlers.OnNote(models.Note{ID: "late"})
	assert.Empty(t, feed.Snapshot().Notes)
	assert.Equal(t, before, changes.Load())

	feed.LoadMore(context.Background())
	assert.Len(t, source.Calls(), 1)
	assert.ErrorIs(t, feed.Reconnect(context.Background()), ErrFeedDestroyed)
}
