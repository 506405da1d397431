package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	TimelineKindHome    = "home"
	TimelineKindLocal   = "local"
	TimelineKindSocial  = "social"
	TimelineKindGlobal  = "global"
	TimelineKindList    = "list"
	TimelineKindUser    = "user"
	TimelineKindChannel = "channel"
)

type TimelineSettings struct {
	ListID      string `json:"list_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	WithReplies bool   `json:"with_replies,omitempty"`
	WithFiles   bool   `json:"with_files,omitempty"`
}

// TimelineConfig is one column of the deck, bound to one server.
type TimelineConfig struct {
	ID        string                               `json:"id" gorm:"primaryKey"`
	Name      string                               `json:"name"`
	ServerID  string                               `json:"server_id" gorm:"index"`
	Type      string                               `json:"type"`
	Order     int                                  `json:"order"`
	IsVisible bool                                 `json:"is_visible"`
	Settings  datatypes.JSONType[TimelineSettings] `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind decodes the stored type string and settings into a TimelineType.
func (v TimelineConfig) Kind() (TimelineType, error) {
	return ParseTimelineType(v.Type, v.Settings.Data())
}

// TimelineType is a closed set of timeline variants, only the types in this file implement it.
type TimelineType interface {
	Name() string
	// Endpoint is the REST endpoint and the extra params of the first page.
	Endpoint() (string, map[string]any)
	// Channel is the stream channel, ok is false when the timeline has no realtime channel.
	Channel() (name string, params map[string]any, ok bool)

	timelineType()
}

type HomeTimeline struct{}
type LocalTimeline struct{}
type SocialTimeline struct{}
type GlobalTimeline struct{}
type ListTimeline struct{ ListID string }
type UserTimeline struct{ UserID string }
type ChannelTimeline struct{ ChannelID string }

func (HomeTimeline) timelineType()    {}
func (LocalTimeline) timelineType()   {}
func (SocialTimeline) timelineType()  {}
func (GlobalTimeline) timelineType()  {}
func (ListTimeline) timelineType()    {}
func (UserTimeline) timelineType()    {}
func (ChannelTimeline) timelineType() {}

func (HomeTimeline) Name() string    { return TimelineKindHome }
func (LocalTimeline) Name() string   { return TimelineKindLocal }
func (SocialTimeline) Name() string  { return TimelineKindSocial }
func (GlobalTimeline) Name() string  { return TimelineKindGlobal }
func (ListTimeline) Name() string    { return TimelineKindList }
func (UserTimeline) Name() string    { return TimelineKindUser }
func (ChannelTimeline) Name() string { return TimelineKindChannel }

func (HomeTimeline) Endpoint() (string, map[string]any)   { return "notes/timeline", nil }
func (LocalTimeline) Endpoint() (string, map[string]any)  { return "notes/local-timeline", nil }
func (SocialTimeline) Endpoint() (string, map[string]any) { return "notes/hybrid-timeline", nil }
func (GlobalTimeline) Endpoint() (string, map[string]any) { return "notes/global-timeline", nil }
func (v ListTimeline) Endpoint() (string, map[string]any) {
	return "notes/user-list-timeline", map[string]any{"listId": v.ListID}
}
func (v UserTimeline) Endpoint() (string, map[string]any) {
	return "users/notes", map[string]any{"userId": v.UserID}
}
func (v ChannelTimeline) Endpoint() (string, map[string]any) {
	return "channels/timeline", map[string]any{"channelId": v.ChannelID}
}

func (HomeTimeline) Channel() (string, map[string]any, bool)   { return "homeTimeline", nil, true }
func (LocalTimeline) Channel() (string, map[string]any, bool)  { return "localTimeline", nil, true }
func (SocialTimeline) Channel() (string, map[string]any, bool) { return "hybridTimeline", nil, true }
func (GlobalTimeline) Channel() (string, map[string]any, bool) { return "globalTimeline", nil, true }
func (v ListTimeline) Channel() (string, map[string]any, bool) {
	return "userList", map[string]any{"listId": v.ListID}, true
}

// Misskey has no per-user realtime channel, user timelines are paginated only.
func (UserTimeline) Channel() (string, map[string]any, bool) { return "", nil, false }
func (v ChannelTimeline) Channel() (string, map[string]any, bool) {
	return "channel", map[string]any{"channelId": v.ChannelID}, true
}

func ParseTimelineType(kind string, settings TimelineSettings) (TimelineType, error) {
	switch kind {
	case TimelineKindHome:
		return HomeTimeline{}, nil
	case TimelineKindLocal:
		return LocalTimeline{}, nil
	case TimelineKindSocial:
		return SocialTimeline{}, nil
	case TimelineKindGlobal:
		return GlobalTimeline{}, nil
	case TimelineKindList:
		if len(settings.ListID) == 0 {
			return nil, fmt.Errorf("list timeline requires a list id")
		}
		return ListTimeline{ListID: settings.ListID}, nil
	case TimelineKindUser:
		if len(settings.UserID) == 0 {
			return nil, fmt.Errorf("user timeline requires a user id")
		}
		return UserTimeline{UserID: settings.UserID}, nil
	case TimelineKindChannel:
		if len(settings.ChannelID) == 0 {
			return nil, fmt.Errorf("channel timeline requires a channel id")
		}
		return ChannelTimeline{ChannelID: settings.ChannelID}, nil
	default:
		return nil, fmt.Errorf("unsupported timeline type: %s", kind)
	}
}
