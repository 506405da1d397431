package services

import (
	"context"
	"strings"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type EmojiSource interface {
	EmojiURL(ctx context.Context, name string) (*string, error)
}

type EmojiPersister interface {
	SaveEmoji(host, name string, url *string) error
}

type EmojiState int

const (
	EmojiResolved EmojiState = iota
	EmojiMissing
	EmojiPending
)

func (v EmojiState) String() string {
	switch v {
	case EmojiResolved:
		return "resolved"
	case EmojiMissing:
		return "missing"
	default:
		return "pending"
	}
}

type EmojiResult struct {
	State EmojiState `json:"-"`
	URL   *string    `json:"url"`
}

// EmojiCache maps (host, name) to an emoji url shared by every render site.
// A nil url is a confirmed miss and is never fetched again.
// At most one lookup per key is in flight, concurrent callers wait on that one.
type EmojiCache struct {
	sourceFor func(host string) EmojiSource
	persist   EmojiPersister

	lock    sync.RWMutex
	entries map[string]map[string]*string
	flights singleflight.Group
}

func NewEmojiCache(sourceFor func(host string) EmojiSource) *EmojiCache {
	return &EmojiCache{
		sourceFor: sourceFor,
		entries:   make(map[string]map[string]*string),
	}
}

func (v *EmojiCache) WithPersister(persist EmojiPersister) *EmojiCache {
	v.persist = persist
	return v
}

// Load warms the cache with persisted entries, existing entries are kept.
func (v *EmojiCache) Load(entries []models.EmojiCacheEntry) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, entry := range entries {
		host := normalizeEmojiHost(entry.Host)
		if len(host) == 0 {
			continue
		}
		if v.entries[host] == nil {
			v.entries[host] = make(map[string]*string)
		}
		if _, ok := v.entries[host][entry.Name]; !ok {
			v.entries[host][entry.Name] = entry.URL
		}
	}
}

func (v *EmojiCache) lookup(host, name string) (*string, bool) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	url, ok := v.entries[host][name]
	return url, ok
}

func (v *EmojiCache) store(host, name string, url *string) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.entries[host] == nil {
		v.entries[host] = make(map[string]*string)
	}
	v.entries[host][name] = url
}

// Snapshot copies the settled entries of host, misses included as nil.
func (v *EmojiCache) Snapshot(host string) map[string]*string {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return lo.Assign(v.entries[normalizeEmojiHost(host)])
}

// Resolve returns the url of emoji name as seen from host, waiting for a lookup when needed.
// local holds the emoji map embedded in the payload and wins over everything else.
// The only error is the cancellation of ctx.
func (v *EmojiCache) Resolve(ctx context.Context, name, host string, local map[string]string) (*string, error) {
	if url, ok := local[name]; ok {
		return &url, nil
	}
	host = normalizeEmojiHost(host)
	if len(host) == 0 {
		return nil, nil
	}
	if url, ok := v.lookup(host, name); ok {
		return url, nil
	}

	ch := v.flights.DoChan(host+"/"+name, func() (any, error) {
		return v.fetch(host, name), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek answers from the cache without blocking. On a cache miss it starts the
// lookup in the background, or joins the one in flight, and reports pending.
func (v *EmojiCache) Peek(name, host string, local map[string]string) EmojiResult {
	if url, ok := local[name]; ok {
		return EmojiResult{State: EmojiResolved, URL: &url}
	}
	host = normalizeEmojiHost(host)
	if len(host) == 0 {
		return EmojiResult{State: EmojiMissing}
	}
	if url, ok := v.lookup(host, name); ok {
		return EmojiResult{State: lo.Ternary(url == nil, EmojiMissing, EmojiResolved), URL: url}
	}

	v.flights.DoChan(host+"/"+name, func() (any, error) {
		return v.fetch(host, name), nil
	})
	return EmojiResult{State: EmojiPending}
}

// ResolveAll resolves a batch of names of the same host in parallel.
func (v *EmojiCache) ResolveAll(ctx context.Context, host string, names []string, local map[string]string) (map[string]*string, error) {
	names = lo.Uniq(names)
	urls := make([]*string, len(names))

	eg, ctx := errgroup.WithContext(ctx)
	for idx, name := range names {
		eg.Go(func() error {
			url, err := v.Resolve(ctx, name, host, local)
			urls[idx] = url
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*string, len(names))
	for idx, name := range names {
		out[name] = urls[idx]
	}
	return out, nil
}

// fetch runs once per key at a time. The result is stored before the flight ends,
// so a later caller either joins the flight or finds the settled entry.
func (v *EmojiCache) fetch(host, name string) *string {
	if url, ok := v.lookup(host, name); ok {
		return url
	}

	var url *string
	source := v.sourceFor(host)
	if source != nil {
		var err error
		// Shared by every waiter, so it must outlive the caller that started it.
		url, err = source.EmojiURL(context.Background(), name)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("host", host).Str("emoji", name).Msg("Failed to fetch custom emoji, treated as missing...")
			metrics.EmojiFetches.WithLabelValues("error").Inc()
			url = nil
		case url == nil:
			metrics.EmojiFetches.WithLabelValues("missing").Inc()
		default:
			metrics.EmojiFetches.WithLabelValues("found").Inc()
		}
	}

	v.store(host, name, url)
	if v.persist != nil {
		if err := v.persist.SaveEmoji(host, name, url); err != nil {
			log.Warn().Err(err).Str("host", host).Str("emoji", name).Msg("Failed to persist custom emoji...")
		}
	}
	return url
}

func normalizeEmojiHost(host string) string {
	host = strings.TrimSpace(host)
	if len(host) == 0 {
		return ""
	}
	return models.OriginHost(host)
}
