package api

import (
	"context"
	"fmt"
	"net/url"
)

// Presence control-plane paths, relative to the API base URL.
const (
	PresenceJoinPath  = "realtime/presence/join"
	PresenceLeavePath = "realtime/presence/leave"
	PresencePath      = "realtime/presence"
)

// PresenceEntry describes a participant on a presence-flavored channel.
// Presence is an application convention layered on ordinary channels plus
// these REST calls; it is not a transport primitive.
type PresenceEntry struct {
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	JoinedAt string         `json:"joined_at"`
}

type presenceJoinRequest struct {
	Channel      string         `json:"channel"`
	PresenceData map[string]any `json:"presence_data"`
}

type presenceLeaveRequest struct {
	Channel string `json:"channel"`
}

// JoinPresence registers presence data for the caller on a channel.
func (c *Client) JoinPresence(ctx context.Context, channel string, presenceData map[string]any) error {
	req := presenceJoinRequest{Channel: channel, PresenceData: presenceData}
	if err := c.Post(ctx, PresenceJoinPath, req, nil); err != nil {
		return fmt.Errorf("joining presence on %s: %w", channel, err)
	}
	return nil
}

// LeavePresence removes the caller's presence data from a channel.
func (c *Client) LeavePresence(ctx context.Context, channel string) error {
	req := presenceLeaveRequest{Channel: channel}
	if err := c.Post(ctx, PresenceLeavePath, req, nil); err != nil {
		return fmt.Errorf("leaving presence on %s: %w", channel, err)
	}
	return nil
}

// GetPresence lists the current presence entries for a channel. This is a
// pure control-plane read; it does not touch the realtime transport.
func (c *Client) GetPresence(ctx context.Context, channel string) ([]PresenceEntry, error) {
	var entries []PresenceEntry
	path := PresencePath + "/" + url.PathEscape(channel)
	if err := c.Get(ctx, path, &entries); err != nil {
		return nil, fmt.Errorf("getting presence for %s: %w", channel, err)
	}
	return entries, nil
}
