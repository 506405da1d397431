package services

import (
	"context"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
)

type CatalogSource interface {
	Meta(ctx context.Context) (models.ServerMeta, error)
	ListEmojis(ctx context.Context) ([]models.CustomEmoji, error)
}

// ServerCatalog caches what a server says about itself, its meta and its emoji catalog.
type ServerCatalog struct {
	marshal   *marshaler.Marshaler
	ttl       time.Duration
	sourceFor func(origin string) CatalogSource
}

func NewServerCatalog(cacheStore store.StoreInterface, ttl time.Duration, sourceFor func(origin string) CatalogSource) *ServerCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ServerCatalog{
		marshal:   marshaler.New(cache.New[any](cacheStore)),
		ttl:       ttl,
		sourceFor: sourceFor,
	}
}

func catalogMetaKey(origin string) string {
	return fmt.Sprintf("server-meta#%s", origin)
}

func catalogEmojisKey(origin string) string {
	return fmt.Sprintf("server-emojis#%s", origin)
}

func catalogTag(origin string) string {
	return fmt.Sprintf("server#%s", origin)
}

func (v *ServerCatalog) Meta(ctx context.Context, origin string) (models.ServerMeta, error) {
	origin = models.NormalizeOrigin(origin)
	key := catalogMetaKey(origin)
	if val, err := v.marshal.Get(ctx, key, new(models.ServerMeta)); err == nil {
		return *val.(*models.ServerMeta), nil
	}

	meta, err := v.sourceFor(origin).Meta(ctx)
	if err != nil {
		return meta, fmt.Errorf("unable to load meta of %s: %w", origin, err)
	}
	v.set(ctx, origin, key, meta)
	return meta, nil
}

func (v *ServerCatalog) Emojis(ctx context.Context, origin string) ([]models.CustomEmoji, error) {
	origin = models.NormalizeOrigin(origin)
	key := catalogEmojisKey(origin)
	if val, err := v.marshal.Get(ctx, key, new([]models.CustomEmoji)); err == nil {
		return *val.(*[]models.CustomEmoji), nil
	}

	emojis, err := v.sourceFor(origin).ListEmojis(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load emojis of %s: %w", origin, err)
	}
	v.set(ctx, origin, key, emojis)
	return emojis, nil
}

func (v *ServerCatalog) set(ctx context.Context, origin, key string, value any) {
	if err := v.marshal.Set(
		ctx,
		key,
		value,
		store.WithExpiration(v.ttl),
		store.WithTags([]string{"server-catalog", catalogTag(origin)}),
	); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache server catalog...")
	}
}

// Invalidate drops everything cached for origin.
func (v *ServerCatalog) Invalidate(ctx context.Context, origin string) {
	origin = models.NormalizeOrigin(origin)
	_ = v.marshal.Delete(ctx, catalogMetaKey(origin))
	_ = v.marshal.Delete(ctx, catalogEmojisKey(origin))
	_ = v.marshal.Invalidate(ctx, store.WithInvalidateTags([]string{catalogTag(origin)}))
}
