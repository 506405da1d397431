package services

import (
	"context"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// ClientOptions builds the client options from settings.
func ClientOptions() []misskey.Option {
	opts := []misskey.Option{
		misskey.WithPageLimit(viper.GetInt("misskey.page_limit")),
		misskey.WithTimeout(viper.GetDuration("misskey.request_timeout")),
	}
	if limit := viper.GetFloat64("misskey.rate_limit"); limit > 0 {
		opts = append(opts, misskey.WithRateLimit(rate.Limit(limit), max(viper.GetInt("misskey.rate_burst"), 1)))
	}
	if ua := viper.GetString("misskey.user_agent"); len(ua) > 0 {
		opts = append(opts, misskey.WithUserAgent(ua))
	}
	return opts
}

// ClientPool hands out one client per (origin, token), so every caller of the same
// account shares the request limiter.
type ClientPool struct {
	opts []misskey.Option

	lock    sync.Mutex
	clients map[string]*misskey.Client
}

func NewClientPool(opts ...misskey.Option) *ClientPool {
	return &ClientPool{
		opts:    opts,
		clients: make(map[string]*misskey.Client),
	}
}

func (v *ClientPool) Get(origin, token string) *misskey.Client {
	origin = models.NormalizeOrigin(origin)
	key := origin + "#" + token

	v.lock.Lock()
	defer v.lock.Unlock()
	if client, ok := v.clients[key]; ok {
		return client
	}
	client := misskey.NewClient(origin, token, v.opts...)
	v.clients[key] = client
	return client
}

func (v *ClientPool) ForServer(server models.ServerConnection) *misskey.Client {
	return v.Get(server.Origin, server.AccessToken)
}

// Anonymous is used for lookups that need no account, such as remote emoji.
func (v *ClientPool) Anonymous(host string) *misskey.Client {
	return v.Get(host, "")
}

// FeedSource returns the server's client as the source of a timeline feed.
func (v *ClientPool) FeedSource(server models.ServerConnection) FeedSource {
	return clientFeedSource{v.ForServer(server)}
}

// clientFeedSource narrows the stream subscription to the interface the feed consumes.
type clientFeedSource struct {
	*misskey.Client
}

func (v clientFeedSource) OpenStream(ctx context.Context, channel string, params map[string]any, handlers misskey.StreamHandlers) (FeedStream, error) {
	sub, err := v.Client.OpenStream(ctx, channel, params, handlers)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
