package realtime

import (
	"context"
	"errors"

	"github.com/fluxez/fluxez-go/api"
)

// ErrNoAPIClient is returned by presence operations when the Client was
// constructed without a control-plane API client.
var ErrNoAPIClient = errors.New("realtime: no api client configured for presence")

// JoinPresence registers presence data for a channel via the control plane,
// then subscribes the handler locally so the caller also receives ordinary
// channel traffic for the presence topic. REST failures are returned to the
// caller; the local subscription is only made after a successful join.
func (c *Client) JoinPresence(ctx context.Context, channel string, presenceData map[string]any, handler Handler) (*Subscription, error) {
	if c.api == nil {
		return nil, ErrNoAPIClient
	}

	if err := c.api.JoinPresence(ctx, channel, presenceData); err != nil {
		c.log.Error("Presence join failed", "channel", channel, "error", err)
		return nil, err
	}

	c.log.Debug("Joined presence", "channel", channel)
	return c.Subscribe(channel, handler), nil
}

// LeavePresence deregisters presence via the control plane and drops every
// local subscription for the channel.
func (c *Client) LeavePresence(ctx context.Context, channel string) error {
	if c.api == nil {
		return ErrNoAPIClient
	}

	if err := c.api.LeavePresence(ctx, channel); err != nil {
		c.log.Error("Presence leave failed", "channel", channel, "error", err)
		return err
	}

	c.Unsubscribe(channel, nil)
	c.log.Debug("Left presence", "channel", channel)
	return nil
}

// GetPresence lists the current presence entries for a channel. Pure
// control-plane read; the realtime transport is not touched.
func (c *Client) GetPresence(ctx context.Context, channel string) ([]api.PresenceEntry, error) {
	if c.api == nil {
		return nil, ErrNoAPIClient
	}
	return c.api.GetPresence(ctx, channel)
}
