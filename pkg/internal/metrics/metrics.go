package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mideck_active_feeds",
		Help: "Number of timeline feeds currently running.",
	})
	ConnectedStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mideck_connected_streams",
		Help: "Number of streaming subscriptions currently connected.",
	})
	StreamNotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mideck_stream_notes_total",
		Help: "Notes delivered by streams, by outcome (merged, duplicate, discarded).",
	}, []string{"outcome"})
	StreamDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mideck_stream_disconnects_total",
		Help: "Number of stream connections lost.",
	})
	PageFetches = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mideck_page_fetch_duration",
		Help: "Duration in seconds of timeline page fetches, by outcome.",
	}, []string{"outcome"})
	EmojiFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mideck_emoji_fetches_total",
		Help: "Custom emoji lookups sent to servers, by outcome (found, missing, error).",
	}, []string{"outcome"})
	NoteSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mideck_note_submissions_total",
		Help: "Composer submissions, by outcome.",
	}, []string{"outcome"})
	ReactionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mideck_reaction_changes_total",
		Help: "Reactions added or removed through the deck, by action and outcome.",
	}, []string{"action", "outcome"})
)
