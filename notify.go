package chatkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
)

// ============================================================================
// Notification Side Effect
// ============================================================================

// Notification type values.
const (
	NotificationMessage = "message"
	NotificationMention = "mention"
)

const notificationBodyLimit = 100

// Notification is the payload handed to the display collaborator for an
// inbound message not authored by the local user.
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Notifier displays notifications. Permission handling and rendering are
// the collaborator's problem.
type Notifier interface {
	ShowNotification(n Notification) error
}

// Sounder plays the audible alert.
type Sounder interface {
	PlayAlert() error
}

// maybeNotify evaluates the notification side effect for an inbound
// message. Messages from the local user never notify; each concrete action
// is gated by its own preference, re-read at decision time.
func (c *Client) maybeNotify(msg Message) {
	c.mu.Lock()
	localID := c.userID
	prefs := c.prefs
	c.mu.Unlock()

	if msg.SenderID == localID {
		return
	}
	if !prefs.PushNotifications && !prefs.SoundNotifications {
		return
	}

	if prefs.PushNotifications && c.notifier != nil {
		n := buildNotification(msg, localID)
		if err := c.notifier.ShowNotification(n); err != nil {
			c.log.Warn().Err(err).Str("id", n.ID).Msg("notification display failed")
		}
	}
	if prefs.SoundNotifications && c.sounder != nil {
		if err := c.sounder.PlayAlert(); err != nil {
			c.log.Warn().Err(err).Msg("alert sound failed")
		}
	}
}

// buildNotification derives the notification payload from a message. A
// content hit on the local mention token or the broadcast token upgrades
// the type to "mention".
func buildNotification(msg Message, localUserID int) Notification {
	mentioned := strings.Contains(msg.Content, fmt.Sprintf("@%d", localUserID)) ||
		strings.Contains(msg.Content, "@all")

	notifType := NotificationMessage
	title := fmt.Sprintf("New message from %s", msg.SenderName)
	if mentioned {
		notifType = NotificationMention
		title = fmt.Sprintf("%s mentioned you", msg.SenderName)
	}

	id := uuid.NewString()
	if msg.ID != 0 {
		id = fmt.Sprintf("msg-%d", msg.ID)
	}

	return Notification{
		ID:    id,
		Type:  notifType,
		Title: title,
		Body:  truncateBody(msg.Content, notificationBodyLimit),
		Data: map[string]any{
			"room_id":   msg.RoomID,
			"sender_id": msg.SenderID,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func truncateBody(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "..."
}

// BeeepNotifier delivers notifications through the desktop notification
// daemon.
type BeeepNotifier struct {
	AppIcon string
}

func (b BeeepNotifier) ShowNotification(n Notification) error {
	return beeep.Notify(n.Title, n.Body, b.AppIcon)
}
