package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// InteractionClient is the part of the foreign api used for reactions and lists.
type InteractionClient interface {
	Reactions(ctx context.Context, noteID string) ([]models.NoteReaction, error)
	React(ctx context.Context, noteID, reaction string) error
	Unreact(ctx context.Context, noteID string) error
	UserLists(ctx context.Context) ([]models.UserList, error)
}

type ReactionSummary struct {
	NoteID    string                 `json:"note_id"`
	Counts    []models.ReactionCount `json:"counts"`
	Mine      *string                `json:"mine"`
	Reactions []models.NoteReaction  `json:"reactions"`
}

// SummarizeReactions counts reactions by type, most used first, and picks the one left by selfID.
func SummarizeReactions(noteID string, reactions []models.NoteReaction, selfID string) ReactionSummary {
	counts := lo.MapToSlice(
		lo.CountValuesBy(reactions, func(item models.NoteReaction) string { return item.Type }),
		func(reaction string, count int) models.ReactionCount {
			return models.ReactionCount{Reaction: reaction, Count: count}
		},
	)
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Reaction < counts[j].Reaction
	})

	summary := ReactionSummary{NoteID: noteID, Counts: counts, Reactions: reactions}
	if len(selfID) > 0 {
		if mine, ok := lo.Find(reactions, func(item models.NoteReaction) bool {
			return item.User.ID == selfID
		}); ok {
			summary.Mine = lo.ToPtr(mine.Type)
		}
	}
	return summary
}

// Interactions performs account actions on notes and lists of a signed in server.
type Interactions struct {
	servers   ServerDirectory
	clientFor func(models.ServerConnection) InteractionClient
}

func NewInteractions(servers ServerDirectory, clientFor func(models.ServerConnection) InteractionClient) *Interactions {
	return &Interactions{servers: servers, clientFor: clientFor}
}

func (v *Interactions) signedIn(serverID string) (models.ServerConnection, InteractionClient, error) {
	server, err := v.servers.GetServer(serverID)
	if err != nil {
		return server, nil, err
	}
	if !server.IsActive || !server.HasToken() {
		return server, nil, fmt.Errorf("%w: server %s is not signed in", misskey.ErrAuth, server.Origin)
	}
	return server, v.clientFor(server), nil
}

func (v *Interactions) Reactions(ctx context.Context, serverID, noteID string) (ReactionSummary, error) {
	server, client, err := v.signedIn(serverID)
	if err != nil {
		return ReactionSummary{}, err
	}
	return v.summary(ctx, server, client, noteID)
}

func (v *Interactions) summary(ctx context.Context, server models.ServerConnection, client InteractionClient, noteID string) (ReactionSummary, error) {
	reactions, err := client.Reactions(ctx, noteID)
	if err != nil {
		return ReactionSummary{}, err
	}
	return SummarizeReactions(noteID, reactions, server.UserID), nil
}

// React sets the account's reaction on a note. Misskey keeps one reaction
// per account, so a different existing reaction is removed first.
func (v *Interactions) React(ctx context.Context, serverID, noteID, reaction string) (ReactionSummary, error) {
	reaction = strings.TrimSpace(reaction)
	if len(reaction) == 0 {
		return ReactionSummary{}, fmt.Errorf("%w: reaction is required", ErrValidation)
	}

	server, client, err := v.signedIn(serverID)
	if err != nil {
		return ReactionSummary{}, err
	}
	summary, err := v.summary(ctx, server, client, noteID)
	if err != nil {
		return summary, err
	}
	if summary.Mine != nil && *summary.Mine == reaction {
		return summary, nil
	}

	if summary.Mine != nil {
		if err := v.unreact(ctx, client, noteID); err != nil {
			return summary, err
		}
	}
	if err := client.React(ctx, noteID, reaction); err != nil {
		metrics.ReactionChanges.WithLabelValues("react", "failed").Inc()
		log.Warn().Err(err).Str("note", noteID).Msg("Failed to react to note...")
		return summary, err
	}
	metrics.ReactionChanges.WithLabelValues("react", "ok").Inc()

	return v.summary(ctx, server, client, noteID)
}

func (v *Interactions) Unreact(ctx context.Context, serverID, noteID string) (ReactionSummary, error) {
	server, client, err := v.signedIn(serverID)
	if err != nil {
		return ReactionSummary{}, err
	}
	if err := v.unreact(ctx, client, noteID); err != nil {
		return ReactionSummary{}, err
	}
	return v.summary(ctx, server, client, noteID)
}

// ToggleReaction removes reaction when it is the account's current one and sets it otherwise.
func (v *Interactions) ToggleReaction(ctx context.Context, serverID, noteID, reaction string) (ReactionSummary, error) {
	summary, err := v.Reactions(ctx, serverID, noteID)
	if err != nil {
		return summary, err
	}
	if summary.Mine != nil && *summary.Mine == strings.TrimSpace(reaction) {
		return v.Unreact(ctx, serverID, noteID)
	}
	return v.React(ctx, serverID, noteID, reaction)
}

func (v *Interactions) unreact(ctx context.Context, client InteractionClient, noteID string) error {
	if err := client.Unreact(ctx, noteID); err != nil {
		metrics.ReactionChanges.WithLabelValues("unreact", "failed").Inc()
		log.Warn().Err(err).Str("note", noteID).Msg("Failed to remove reaction...")
		return err
	}
	metrics.ReactionChanges.WithLabelValues("unreact", "ok").Inc()
	return nil
}

// UserLists returns the lists of the account signed in on serverID.
func (v *Interactions) UserLists(ctx context.Context, serverID string) ([]models.UserList, error) {
	_, client, err := v.signedIn(serverID)
	if err != nil {
		return nil, err
	}
	return client.UserLists(ctx)
}
