package discord

import "time"

// EventStatus is the lifecycle state of a guild scheduled event.
type EventStatus int

const (
	StatusScheduled EventStatus = 1
	StatusActive    EventStatus = 2
	StatusCompleted EventStatus = 3
	StatusCanceled  EventStatus = 4
)

var statusNames = map[EventStatus]string{
	StatusScheduled: "scheduled",
	StatusActive:    "active",
	StatusCompleted: "completed",
	StatusCanceled:  "canceled",
}

func (s EventStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// PrivacyLevel of a scheduled event. GUILD_ONLY is the only value Discord accepts.
type PrivacyLevel int

const PrivacyGuildOnly PrivacyLevel = 2

// EntityType says where a scheduled event takes place.
type EntityType int

const (
	EntityStageInstance EntityType = 1
	EntityVoice         EntityType = 2
	EntityExternal      EntityType = 3
)

// ChannelType is the subset of Discord channel types this bot cares about.
type ChannelType int

const (
	ChannelGuildText  ChannelType = 0
	ChannelGuildVoice ChannelType = 2
	ChannelGuildStage ChannelType = 13
)

// ScheduledEvent mirrors Discord's guild scheduled event object.
type ScheduledEvent struct {
	ID                 string       `json:"id"`
	GuildID            string       `json:"guild_id"`
	ChannelID          *string      `json:"channel_id"`
	CreatorID          *string      `json:"creator_id,omitempty"`
	Name               string       `json:"name"`
	Description        *string      `json:"description,omitempty"`
	Image              *string      `json:"image,omitempty"`
	ScheduledStartTime time.Time    `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time   `json:"scheduled_end_time"`
	PrivacyLevel       PrivacyLevel `json:"privacy_level"`
	Status             EventStatus  `json:"status"`
	EntityType         EntityType   `json:"entity_type"`
}

// DescriptionText returns the description, or "" when it is absent.
func (e *ScheduledEvent) DescriptionText() string {
	if e == nil || e.Description == nil {
		return ""
	}
	return *e.Description
}

// ChannelIDText returns the channel id, or "" for external events.
func (e *ScheduledEvent) ChannelIDText() string {
	if e == nil || e.ChannelID == nil {
		return ""
	}
	return *e.ChannelID
}

// ImageHash returns the cover image hash, or "" when the event has no cover.
func (e *ScheduledEvent) ImageHash() string {
	if e == nil || e.Image == nil {
		return ""
	}
	return *e.Image
}

// StartMillis returns the scheduled start as epoch milliseconds.
func (e *ScheduledEvent) StartMillis() int64 {
	return e.ScheduledStartTime.UnixMilli()
}

// Guild is the part of a guild object needed to create events in it.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is the part of a channel object needed to host an event.
type Channel struct {
	ID      string      `json:"id"`
	GuildID string      `json:"guild_id,omitempty"`
	Name    string      `json:"name"`
	Type    ChannelType `json:"type"`
}

// EventEntityType picks the scheduled event entity type that matches the channel.
func (c *Channel) EventEntityType() EntityType {
	if c.Type == ChannelGuildStage {
		return EntityStageInstance
	}
	return EntityVoice
}

// CreateScheduledEventParams is the body of POST /guilds/{id}/scheduled-events.
type CreateScheduledEventParams struct {
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	ChannelID          string       `json:"channel_id,omitempty"`
	ScheduledStartTime time.Time    `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time   `json:"scheduled_end_time,omitempty"`
	PrivacyLevel       PrivacyLevel `json:"privacy_level"`
	EntityType         EntityType   `json:"entity_type"`
	Image              string       `json:"image,omitempty"`
}
