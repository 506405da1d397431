package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmojiCache(source *fakeEmojiSource) *EmojiCache {
	return NewEmojiCache(func(string) EmojiSource { return source })
}

func TestEmojiSingleFlight(t *testing.T) {
	source := &fakeEmojiSource{
		urls: map[string]*string{"party": lo.ToPtr("https://host.example/party.png")},
		gate: make(chan struct{}),
	}
	cache := newTestEmojiCache(source)

	const callers = 16
	results := make([]*string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := cache.Resolve(context.Background(), "party", "host.example", nil)
			assert.NoError(t, err)
			results[i] = url
		}()
	}

	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.Equal(t, 1, source.Calls())
	for _, url := range results {
		require.NotNil(t, url)
		assert.Equal(t, "https://host.example/party.png", *url)
	}
}

func TestEmojiNegativeCache(t *testing.T) {
	source := &fakeEmojiSource{urls: map[string]*string{}}
	cache := newTestEmojiCache(source)

	url, err := cache.Resolve(context.Background(), "ghost", "host.example", nil)
	require.NoError(t, err)
	assert.Nil(t, url)

	url, err = cache.Resolve(context.Background(), "ghost", "host.example", nil)
	require.NoError(t, err)
	assert.Nil(t, url)
	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, EmojiMissing, cache.Peek("ghost", "host.example", nil).State)
}

func TestEmojiFetchErrorIsCachedAsMissing(t *testing.T) {
	source := &fakeEmojiSource{err: errors.New("server exploded")}
	cache := newTestEmojiCache(source)

	url, err := cache.Resolve(context.Background(), "party", "host.example", nil)
	require.NoError(t, err)
	assert.Nil(t, url)

	_, _ = cache.Resolve(context.Background(), "party", "host.example", nil)
	assert.Equal(t, 1, source.Calls())
}

func TestEmojiLocalMapWins(t *testing.T) {
	source := &fakeEmojiSource{}
	cache := newTestEmojiCache(source)
	note := models.Note{
		Emojis: map[string]string{"blob": "https://local.example/blob.png"},
		User:   models.NoteUser{Emojis: map[string]string{"blob": "https://other.example/blob.png"}},
	}

	url, err := cache.Resolve(context.Background(), "blob", "host.example", note.LocalEmojis())
	require.NoError(t, err)
	require.NotNil(t, url)
	assert.Equal(t, "https://local.example/blob.png", *url)
	assert.Equal(t, 0, source.Calls())
}

func TestEmojiWithoutHostIsMissing(t *testing.T) {
	source := &fakeEmojiSource{}
	cache := newTestEmojiCache(source)

	url, err := cache.Resolve(context.Background(), "party", "", nil)
	require.NoError(t, err)
	assert.Nil(t, url)
	assert.Equal(t, EmojiMissing, cache.Peek("party", " ", nil).State)
	assert.Equal(t, 0, source.Calls())
}

func TestEmojiPeekStartsFetch(t *testing.T) {
	source := &fakeEmojiSource{
		urls: map[string]*string{"party": lo.ToPtr("https://host.example/party.png")},
		gate: make(chan struct{}),
	}
	cache := newTestEmojiCache(source)

	assert.Equal(t, EmojiPending, cache.Peek("party", "host.example", nil).State)
	assert.Equal(t, EmojiPending, cache.Peek("party", "https://HOST.example/", nil).State)
	close(source.gate)

	require.Eventually(t, func() bool {
		return cache.Peek("party", "host.example", nil).State == EmojiResolved
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, source.Calls())
}

func TestEmojiResolveHonoursContext(t *testing.T) {
	source := &fakeEmojiSource{gate: make(chan struct{})}
	cache := newTestEmojiCache(source)
	defer close(source.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.Resolve(ctx, "slow", "host.example", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmojiResolveAll(t *testing.T) {
	source := &fakeEmojiSource{urls: map[string]*string{
		"a": lo.ToPtr("https://host.example/a.png"),
		"b": lo.ToPtr("https://host.example/b.png"),
	}}
	cache := newTestEmojiCache(source)

	urls, err := cache.ResolveAll(context.Background(), "host.example", []string{"a", "b", "c", "a"}, nil)
	require.NoError(t, err)
	require.Len(t, urls, 3)
	assert.Equal(t, "https://host.example/a.png", *urls["a"])
	assert.Equal(t, "https://host.example/b.png", *urls["b"])
	assert.Nil(t, urls["c"])
	assert.Equal(t, 3, source.Calls())
}

func TestEmojiPersistence(t *testing.T) {
	store := newTestStore(t)
	source := &fakeEmojiSource{urls: map[string]*string{"party": lo.ToPtr("https://host.example/party.png")}}

	cache := newTestEmojiCache(source).WithPersister(store)
	_, _ = cache.Resolve(context.Background(), "party", "host.example", nil)
	_, _ = cache.Resolve(context.Background(), "ghost", "host.example", nil)

	entries, err := store.LoadEmojis()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	warm := newTestEmojiCache(source)
	warm.Load(entries)
	url, err := warm.Resolve(context.Background(), "party", "host.example", nil)
	require.NoError(t, err)
	require.NotNil(t, url)
	assert.Equal(t, "https://host.example/party.png", *url)
	assert.Equal(t, EmojiMissing, warm.Peek("ghost", "host.example", nil).State)
	assert.Equal(t, 2, source.Calls())

	snapshot := warm.Snapshot("host.example")
	assert.Len(t, snapshot, 2)
}
