package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// TimelineStorage is the part of the store the registry reads.
type TimelineStorage interface {
	GetServers() ([]models.ServerConnection, error)
	GetTimelines() ([]models.TimelineConfig, error)
	Subscribe() (<-chan StoreEvent, func())
}

type feedSpec struct {
	config      models.TimelineConfig
	kind        models.TimelineType
	server      models.ServerConnection
	fingerprint string
}

type syncPlan struct {
	Create  []feedSpec
	Destroy []string
	Keep    []models.TimelineConfig
}

// feedFingerprint covers everything a running feed was built from.
// A change under the same config id means the feed has to be recreated.
func feedFingerprint(config models.TimelineConfig, server models.ServerConnection) string {
	settings, _ := jsoniter.MarshalToString(config.Settings.Data())
	return fmt.Sprintf("%s|%s|%s|%s|%s", server.ID, server.Origin, server.AccessToken, config.Type, settings)
}

// planSync decides which feeds to create and destroy so that the running set matches configs.
// current maps the id of each running feed to its fingerprint.
// A config is eligible when it is visible, its type decodes and its server is active with a token.
func planSync(current map[string]string, configs []models.TimelineConfig, servers []models.ServerConnection) syncPlan {
	serverMap := lo.SliceToMap(servers, func(item models.ServerConnection) (string, models.ServerConnection) {
		return item.ID, item
	})

	var plan syncPlan
	wanted := make(map[string]struct{}, len(configs))
	for _, config := range configs {
		if _, ok := wanted[config.ID]; ok {
			continue
		}
		server, ok := serverMap[config.ServerID]
		if !config.IsVisible || !ok || !server.IsActive || !server.HasToken() {
			continue
		}
		kind, err := config.Kind()
		if err != nil {
			log.Warn().Err(err).Str("timeline", config.ID).Msg("Timeline config is invalid, skipped...")
			continue
		}
		wanted[config.ID] = struct{}{}

		fingerprint := feedFingerprint(config, server)
		if existing, ok := current[config.ID]; ok {
			if existing == fingerprint {
				plan.Keep = append(plan.Keep, config)
				continue
			}
			plan.Destroy = append(plan.Destroy, config.ID)
		}
		plan.Create = append(plan.Create, feedSpec{
			config:      config,
			kind:        kind,
			server:      server,
			fingerprint: fingerprint,
		})
	}

	for id := range current {
		if _, ok := wanted[id]; !ok {
			plan.Destroy = append(plan.Destroy, id)
		}
	}
	sort.Strings(plan.Destroy)
	return plan
}

type registeredFeed struct {
	feed        *Feed
	fingerprint string
	order       int
}

type SyncResult struct {
	Created   []string `json:"created"`
	Destroyed []string `json:"destroyed"`
}

// Registry owns one running Feed per eligible timeline config.
type Registry struct {
	sourceFor func(models.ServerConnection) FeedSource
	feedOpts  []FeedOption

	lock   sync.Mutex
	feeds  map[string]registeredFeed
	closed bool
	// syncLock serializes whole reconciliations, so feeds start in plan order.
	syncLock sync.Mutex
}

func NewRegistry(sourceFor func(models.ServerConnection) FeedSource, opts ...FeedOption) *Registry {
	return &Registry{
		sourceFor: sourceFor,
		feedOpts:  opts,
		feeds:     make(map[string]registeredFeed),
	}
}

// Sync reconciles the running feeds with configs and servers. It is idempotent,
// feeds whose config and server are unchanged keep running untouched.
func (v *Registry) Sync(configs []models.TimelineConfig, servers []models.ServerConnection) SyncResult {
	v.syncLock.Lock()
	defer v.syncLock.Unlock()

	v.lock.Lock()
	if v.closed {
		v.lock.Unlock()
		return SyncResult{}
	}
	current := lo.MapValues(v.feeds, func(item registeredFeed, _ string) string {
		return item.fingerprint
	})
	plan := planSync(current, configs, servers)

	for _, config := range plan.Keep {
		item := v.feeds[config.ID]
		item.order = config.Order
		v.feeds[config.ID] = item
	}
	var stale []*Feed
	for _, id := range plan.Destroy {
		stale = append(stale, v.feeds[id].feed)
		delete(v.feeds, id)
	}
	var fresh []*Feed
	for _, spec := range plan.Create {
		feed := NewFeed(spec.config, spec.kind, v.sourceFor(spec.server), v.feedOpts...)
		v.feeds[spec.config.ID] = registeredFeed{feed: feed, fingerprint: spec.fingerprint, order: spec.config.Order}
		fresh = append(fresh, feed)
	}
	v.lock.Unlock()

	for _, feed := range stale {
		feed.Dispose()
		metrics.ActiveFeeds.Dec()
	}
	for _, feed := range fresh {
		feed.Start()
		metrics.ActiveFeeds.Inc()
	}

	result := SyncResult{
		Created:   lo.Map(plan.Create, func(item feedSpec, _ int) string { return item.config.ID }),
		Destroyed: plan.Destroy,
	}
	if len(result.Created) > 0 || len(result.Destroyed) > 0 {
		log.Info().
			Int("created", len(result.Created)).
			Int("destroyed", len(result.Destroyed)).
			Int("kept", len(plan.Keep)).
			Msg("Timeline feeds reconciled.")
	}
	return result
}

// Resync reads the storage and reconciles. A failed read leaves the running feeds as they are.
func (v *Registry) Resync(storage TimelineStorage) error {
	servers, err := storage.GetServers()
	if err != nil {
		return err
	}
	timelines, err := storage.GetTimelines()
	if err != nil {
		return err
	}
	v.Sync(timelines, servers)
	return nil
}

// Run reconciles once, then again on every storage change until ctx is done.
func (v *Registry) Run(ctx context.Context, storage TimelineStorage) {
	events, cancel := storage.Subscribe()
	defer cancel()

	if err := v.Resync(storage); err != nil {
		log.Error().Err(err).Msg("Failed to load timelines from storage...")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := v.Resync(storage); err != nil {
				log.Error().Err(err).Msg("Failed to reconcile timelines after storage change...")
			}
		}
	}
}

func (v *Registry) Feed(id string) (*Feed, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	item, ok := v.feeds[id]
	return item.feed, ok
}

// Feeds lists the running feeds in deck order.
func (v *Registry) Feeds() []*Feed {
	v.lock.Lock()
	items := lo.Values(v.feeds)
	v.lock.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].order != items[j].order {
			return items[i].order < items[j].order
		}
		return items[i].feed.ID() < items[j].feed.ID()
	})
	return lo.Map(items, func(item registeredFeed, _ int) *Feed { return item.feed })
}

// Close disposes every feed, later syncs are ignored.
func (v *Registry) Close() {
	v.lock.Lock()
	v.closed = true
	feeds := v.feeds
	v.feeds = make(map[string]registeredFeed)
	v.lock.Unlock()

	for _, item := range feeds {
		item.feed.Dispose()
		metrics.ActiveFeeds.Dec()
	}
}
