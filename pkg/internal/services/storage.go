package services

import (
	"errors"
	"fmt"
	"sync"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrServerNotFound   = errors.New("server not found")
	ErrTimelineNotFound = errors.New("timeline not found")
)

type StoreEventKind int

const (
	StoreServersChanged StoreEventKind = iota
	StoreTimelinesChanged
)

type StoreEvent struct {
	Kind StoreEventKind
	ID   string
}

// Store keeps servers, timelines and the emoji cache in the relational database
// and notifies subscribers after every write.
type Store struct {
	db *gorm.DB

	subLock sync.Mutex
	subs    map[int]chan StoreEvent
	nextSub int
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:   db,
		subs: make(map[int]chan StoreEvent),
	}
}

// Subscribe returns a channel of change events. Events are dropped for a slow
// subscriber, a subscriber is expected to re-read the whole state on each event.
func (v *Store) Subscribe() (<-chan StoreEvent, func()) {
	v.subLock.Lock()
	defer v.subLock.Unlock()

	id := v.nextSub
	v.nextSub++
	ch := make(chan StoreEvent, 16)
	v.subs[id] = ch

	return ch, func() {
		v.subLock.Lock()
		defer v.subLock.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
}

func (v *Store) publish(evt StoreEvent) {
	v.subLock.Lock()
	defer v.subLock.Unlock()
	for _, sub := range v.subs {
		select {
		case sub <- evt:
		default:
			log.Debug().Int("kind", int(evt.Kind)).Msg("Subscriber is busy, store event dropped...")
		}
	}
}

func (v *Store) GetServers() ([]models.ServerConnection, error) {
	var servers []models.ServerConnection
	if err := v.db.Order("created_at ASC").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("unable to list servers: %v", err)
	}
	return servers, nil
}

func (v *Store) GetServer(id string) (models.ServerConnection, error) {
	var server models.ServerConnection
	if err := v.db.Where("id = ?", id).First(&server).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return server, fmt.Errorf("%w: %s", ErrServerNotFound, id)
		}
		return server, fmt.Errorf("unable to get server: %v", err)
	}
	return server, nil
}

func (v *Store) AddServer(server models.ServerConnection) (models.ServerConnection, error) {
	if len(server.ID) == 0 {
		server.ID = uuid.NewString()
	}
	server.Origin = models.NormalizeOrigin(server.Origin)
	if len(server.Origin) == 0 {
		return server, fmt.Errorf("server origin is required")
	}
	if err := v.db.Create(&server).Error; err != nil {
		return server, err
	}
	v.publish(StoreEvent{Kind: StoreServersChanged, ID: server.ID})
	return server, nil
}

func (v *Store) UpdateServer(server models.ServerConnection) (models.ServerConnection, error) {
	if _, err := v.GetServer(server.ID); err != nil {
		return server, err
	}
	server.Origin = models.NormalizeOrigin(server.Origin)
	if err := v.db.Save(&server).Error; err != nil {
		return server, err
	}
	v.publish(StoreEvent{Kind: StoreServersChanged, ID: server.ID})
	return server, nil
}

// DeleteServer removes the server together with every timeline bound to it.
func (v *Store) DeleteServer(id string) error {
	err := v.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("server_id = ?", id).Delete(&models.TimelineConfig{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.ServerConnection{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrServerNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	v.publish(StoreEvent{Kind: StoreServersChanged, ID: id})
	v.publish(StoreEvent{Kind: StoreTimelinesChanged})
	return nil
}

func (v *Store) GetTimelines() ([]models.TimelineConfig, error) {
	var timelines []models.TimelineConfig
	if err := v.db.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Order("created_at ASC").
		Find(&timelines).Error; err != nil {
		return nil, fmt.Errorf("unable to list timelines: %v", err)
	}
	return timelines, nil
}

func (v *Store) GetTimeline(id string) (models.TimelineConfig, error) {
	var timeline models.TimelineConfig
	if err := v.db.Where("id = ?", id).First(&timeline).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return timeline, fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
		}
		return timeline, fmt.Errorf("unable to get timeline: %v", err)
	}
	return timeline, nil
}

// AddTimeline appends a timeline at the end of the deck.
func (v *Store) AddTimeline(timeline models.TimelineConfig) (models.TimelineConfig, error) {
	if _, err := timeline.Kind(); err != nil {
		return timeline, err
	}
	if _, err := v.GetServer(timeline.ServerID); err != nil {
		return timeline, err
	}
	if len(timeline.ID) == 0 {
		timeline.ID = uuid.NewString()
	}

	var count int64
	if err := v.db.Model(&models.TimelineConfig{}).Count(&count).Error; err != nil {
		return timeline, err
	}
	timeline.Order = int(count)

	if err := v.db.Create(&timeline).Error; err != nil {
		return timeline, err
	}
	v.publish(StoreEvent{Kind: StoreTimelinesChanged, ID: timeline.ID})
	return timeline, nil
}

func (v *Store) UpdateTimeline(timeline models.TimelineConfig) (models.TimelineConfig, error) {
	if _, err := timeline.Kind(); err != nil {
		return timeline, err
	}
	if _, err := v.GetTimeline(timeline.ID); err != nil {
		return timeline, err
	}
	if err := v.db.Save(&timeline).Error; err != nil {
		return timeline, err
	}
	v.publish(StoreEvent{Kind: StoreTimelinesChanged, ID: timeline.ID})
	return timeline, nil
}

func (v *Store) DeleteTimeline(id string) error {
	result := v.db.Where("id = ?", id).Delete(&models.TimelineConfig{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
	}
	v.publish(StoreEvent{Kind: StoreTimelinesChanged, ID: id})
	return nil
}

// ReorderTimelines assigns the order of each timeline from its position in ids.
func (v *Store) ReorderTimelines(ids []string) error {
	if len(lo.Uniq(ids)) != len(ids) {
		return fmt.Errorf("timeline order contains duplicated ids")
	}
	err := v.db.Transaction(func(tx *gorm.DB) error {
		for idx, id := range ids {
			result := tx.Model(&models.TimelineConfig{}).Where("id = ?", id).Update("order", idx)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	v.publish(StoreEvent{Kind: StoreTimelinesChanged})
	return nil
}

func (v *Store) LoadEmojis() ([]models.EmojiCacheEntry, error) {
	var entries []models.EmojiCacheEntry
	if err := v.db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("unable to load emoji cache: %v", err)
	}
	return entries, nil
}

// SaveEmoji upserts one emoji cache entry.
func (v *Store) SaveEmoji(host, name string, url *string) error {
	entry := models.EmojiCacheEntry{Host: host, Name: name, URL: url}
	return v.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "host"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "updated_at"}),
	}).Create(&entry).Error
}
