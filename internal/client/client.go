// Package client wires the messaging subsystem together: REST, cache,
// store, live channels, typing, polling and notifications. A Client is
// long-lived; a Session is the per-view unit that owns one scope's
// channel and timers and tears them all down on scope change.
package client

import (
	"context"

	"classwire/internal/cache"
	"classwire/internal/channel"
	"classwire/internal/config"
	"classwire/internal/logger"
	"classwire/internal/notify"
	"classwire/internal/rest"
	"classwire/internal/store"
	"classwire/pkg/types"
)

// Client is the entry point of the messaging subsystem.
type Client struct {
	cfg      *config.Config
	log      logger.Logger
	token    rest.TokenSource
	api      *rest.Client
	cache    *cache.Store
	store    *store.Store
	channels *channel.Manager
	notify   *notify.Surface
	user     types.User
}

// Option adjusts client construction.
type Option func(*settings)

type settings struct {
	dial channel.DialFunc
}

// WithDialFunc substitutes the channel transport dialer. Tests run the
// client against an in-memory transport this way.
func WithDialFunc(d channel.DialFunc) Option {
	return func(s *settings) { s.dial = d }
}

// New assembles a client for user. sound and system are optional side
// effect hooks for the notification surface.
func New(cfg *config.Config, user types.User, token rest.TokenSource, sound notify.SoundPlayer, system notify.SystemNotifier, log logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var set settings
	for _, opt := range opts {
		opt(&set)
	}

	api := rest.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout, cfg.API.PageSize, log)

	// A broken cache downgrades to memory-only state, never to a
	// broken client.
	cacheStore, err := cache.Open(cfg.Cache.Path, log)
	if err != nil {
		log.Warn("opening cache at %s: %v; continuing without persistence", cfg.Cache.Path, err)
		cacheStore = nil
	}

	st := store.New(api, cacheStore, user.ID, cfg.Cache.ConversationsTTL, cfg.Cache.MessagesTTL, log)

	channels := channel.NewManager(channel.Options{
		BaseURL:              cfg.Channel.BaseURL,
		WriteTimeout:         cfg.Channel.WriteTimeout,
		ReconnectBaseDelay:   cfg.Channel.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Channel.ReconnectMaxDelay,
		ReconnectMaxAttempts: cfg.Channel.ReconnectMaxAttempts,
		Dial:                 set.dial,
	}, log)

	surface := notify.New(api, user.ID, cfg.Notify.VisibleCap, cfg.Notify.DisplayTimeout, sound, system, log)

	return &Client{
		cfg:      cfg,
		log:      log,
		token:    token,
		api:      api,
		cache:    cacheStore,
		store:    st,
		channels: channels,
		notify:   surface,
		user:     user,
	}, nil
}

// Store exposes the conversation/message state.
func (c *Client) Store() *store.Store { return c.store }

// Notifications exposes the notification surface.
func (c *Client) Notifications() *notify.Surface { return c.notify }

// User returns the authenticated user this client acts as.
func (c *Client) User() types.User { return c.user }

// RefreshConversations primes the list from cache and revalidates over
// REST.
func (c *Client) RefreshConversations(ctx context.Context) error {
	c.store.PrimeFromCache(0)
	return c.store.FetchConversations(ctx)
}

// Close tears down every open session resource.
func (c *Client) Close() {
	c.channels.Close()
	c.notify.Close()
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			c.log.Warn("closing cache: %v", err)
		}
	}
}
