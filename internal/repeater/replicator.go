package repeater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/repeatbot/internal/discord"
)

// Platform is the slice of the Discord API the repeater needs.
type Platform interface {
	Guild(ctx context.Context, guildID string) (*discord.Guild, error)
	Channel(ctx context.Context, channelID string) (*discord.Channel, error)
	CoverImage(ctx context.Context, eventID, imageHash string, size int) (string, error)
	CreateScheduledEvent(ctx context.Context, guildID string, params discord.CreateScheduledEventParams) (*discord.ScheduledEvent, error)
}

var errNoChannel = errors.New("event has no channel")

// Replicator creates the follow-up of a scheduled event.
type Replicator struct {
	platform Platform
}

// NewReplicator creates a Replicator backed by platform.
func NewReplicator(platform Platform) *Replicator {
	return &Replicator{platform: platform}
}

// Replicate creates one new scheduled event that copies before's name,
// description, channel and cover image, running from start to end (epoch
// milliseconds). Failures are returned as-is; nothing is retried.
func (r *Replicator) Replicate(ctx context.Context, before *discord.ScheduledEvent, start, end int64) (*discord.ScheduledEvent, error) {
	guild, err := r.platform.Guild(ctx, before.GuildID)
	if err != nil {
		return nil, fmt.Errorf("lookup guild %s: %w", before.GuildID, err)
	}

	channelID := before.ChannelIDText()
	if channelID == "" {
		return nil, fmt.Errorf("lookup channel for event %s: %w", before.ID, errNoChannel)
	}
	channel, err := r.platform.Channel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("lookup channel %s: %w", channelID, err)
	}

	var image string
	if hash := before.ImageHash(); hash != "" {
		image, err = r.platform.CoverImage(ctx, before.ID, hash, discord.MaxImageSize)
		if err != nil {
			return nil, fmt.Errorf("resolve cover image: %w", err)
		}
	}

	endTime := time.UnixMilli(end).UTC()
	params := discord.CreateScheduledEventParams{
		Name:               before.Name,
		Description:        before.DescriptionText(),
		ChannelID:          channel.ID,
		ScheduledStartTime: time.UnixMilli(start).UTC(),
		ScheduledEndTime:   &endTime,
		PrivacyLevel:       discord.PrivacyGuildOnly,
		EntityType:         channel.EventEntityType(),
		Image:              image,
	}

	created, err := r.platform.CreateScheduledEvent(ctx, guild.ID, params)
	if err != nil {
		return nil, fmt.Errorf("create scheduled event: %w", err)
	}
	return created, nil
}
