// Package chatkit implements the realtime messaging client used by the
// ClassPulse dashboards: a single WebSocket connection with heartbeat,
// bounded auto-reconnect, room membership, typing-indicator debounce, and
// per-category listener registration.
//
// Example:
//
//	client := chatkit.NewClient(&chatkit.Config{
//		BaseURL:     "https://chat.classpulse.app",
//		Preferences: &chatkit.FilePreferenceStore{Path: prefsPath},
//	})
//	defer client.Disconnect()
//
//	off := client.OnMessage(func(m chatkit.Message) { ... })
//	defer off()
//
//	if err := client.Connect(ctx, userID, token); err != nil { ... }
//	client.JoinRoom(roomID)
//	client.SendMessage(roomID, "hello")
package chatkit

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults for the timer-driven machinery. All four are overridable via
// Config; the values mirror the production endpoints this client talks to.
const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultTypingTimeout        = 3 * time.Second
)

const writeTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the http(s) origin of the chat server. The WebSocket
	// scheme mirrors it: https becomes wss, http becomes ws.
	BaseURL string

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	TypingTimeout        time.Duration

	// Preferences seeds the user preference cache at construction and on
	// RefreshPreferences. Nil means built-in defaults.
	Preferences PreferenceStore

	// Notifier and Sounder deliver the inbound-message side effects.
	Notifier Notifier
	Sounder  Sounder

	Logger *zerolog.Logger
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.TypingTimeout == 0 {
		c.TypingTimeout = DefaultTypingTimeout
	}
	if c.Notifier == nil {
		c.Notifier = BeeepNotifier{}
	}
	if c.Sounder == nil {
		c.Sounder = BeeepSounder{}
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
}

// NewClient creates a disconnected client. Call Connect to open the
// session. A preference-load failure is logged and replaced by safe
// defaults; it is never fatal.
func NewClient(config *Config) *Client {
	cfg := *config
	cfg.defaults()
	c := &Client{
		cfg:      cfg,
		log:      *cfg.Logger,
		store:    cfg.Preferences,
		notifier: cfg.Notifier,
		sounder:  cfg.Sounder,
		dispatch: newDispatcher(*cfg.Logger),
	}
	c.prefs = c.loadPreferences()
	return c
}
