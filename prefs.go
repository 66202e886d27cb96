package chatkit

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// ============================================================================
// User Preferences
// ============================================================================

// Preferences are the user-toggleable switches that gate client behavior.
// Every gated decision (reconnect scheduling, typing-indicator forwarding,
// notification triggering) re-checks the live in-memory copy at the moment
// of the decision, not at connect time.
type Preferences struct {
	AutoReconnect        bool `toml:"auto_reconnect" json:"autoReconnect"`
	ShowTypingIndicators bool `toml:"show_typing_indicators" json:"showTypingIndicators"`
	ShowOnlineStatus     bool `toml:"show_online_status" json:"showOnlineStatus"`
	SoundNotifications   bool `toml:"sound_notifications" json:"soundNotifications"`
	PushNotifications    bool `toml:"push_notifications" json:"pushNotifications"`
}

// DefaultPreferences is the safe fallback used when the store is missing
// or unreadable.
func DefaultPreferences() Preferences {
	return Preferences{
		AutoReconnect:        true,
		ShowTypingIndicators: true,
		ShowOnlineStatus:     true,
		SoundNotifications:   true,
		PushNotifications:    false,
	}
}

// PreferenceStore loads durable user preferences. The client reads it at
// construction and again on every RefreshPreferences call; there are no
// change events, the host decides when to refresh.
type PreferenceStore interface {
	Load() (Preferences, error)
}

// FilePreferenceStore persists preferences as a TOML file.
type FilePreferenceStore struct {
	Path string
}

// Load reads the preference file. A missing file yields defaults without
// error; a corrupt file yields defaults and the parse error.
func (s *FilePreferenceStore) Load() (Preferences, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPreferences(), nil
		}
		return DefaultPreferences(), fmt.Errorf("cannot read preferences: %w", err)
	}
	prefs := DefaultPreferences()
	if err := toml.Unmarshal(data, &prefs); err != nil {
		return DefaultPreferences(), fmt.Errorf("cannot parse preferences: %w", err)
	}
	return prefs, nil
}

// Save writes the preference file.
func (s *FilePreferenceStore) Save(prefs Preferences) error {
	data, err := toml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("cannot marshal preferences: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write preferences: %w", err)
	}
	return nil
}

// ============================================================================
// Client preference cache
// ============================================================================

func (c *Client) loadPreferences() Preferences {
	if c.store == nil {
		return DefaultPreferences()
	}
	prefs, err := c.store.Load()
	if err != nil {
		c.log.Warn().Err(err).Msg("preference load failed, using defaults")
		return DefaultPreferences()
	}
	return prefs
}

// RefreshPreferences re-reads the preference store into the live cache.
// The host calls this after the user changes a setting; no reconnect is
// needed for the new values to take effect.
func (c *Client) RefreshPreferences() {
	prefs := c.loadPreferences()
	c.mu.Lock()
	c.prefs = prefs
	c.mu.Unlock()
}

// CurrentPreferences returns the live preference cache.
func (c *Client) CurrentPreferences() Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs
}
