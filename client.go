package chatkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned by outbound actions when the transport is
// not open. Sends are fire-and-forget: the frame is dropped with a warning
// log, never queued or retried.
var ErrNotConnected = errors.New("chatkit: not connected")

// Client owns exactly one duplex connection at a time and fans inbound
// frames out to the registered listeners. All session state is guarded by
// mu; listeners may be registered and removed from any goroutine.
type Client struct {
	cfg      Config
	log      zerolog.Logger
	dispatch *dispatcher
	store    PreferenceStore
	notifier Notifier
	sounder  Sounder

	mu                sync.Mutex
	conn              *websocket.Conn
	connecting        bool
	connected         bool
	userID            int
	token             string
	currentRoomID     int
	reconnectAttempts int
	prefs             Preferences

	// gen distinguishes the live connection from goroutines belonging to a
	// torn-down one.
	gen            uint64
	readCancel     context.CancelFunc
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	typingTimer    *time.Timer
}

// ============================================================================
// Lifecycle
// ============================================================================

// Connect opens the transport and authenticates as userID. It is a no-op
// when a connection is already open. A failed dial counts as an abnormal
// closure and feeds the reconnection policy.
func (c *Client) Connect(ctx context.Context, userID int, token string) error {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.userID = userID
	c.token = token
	c.mu.Unlock()

	wsURL := c.wsURL(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		c.log.Error().Err(err).Str("url", wsURL).Msg("websocket dial failed")
		c.scheduleReconnect()
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c.mu.Lock()
	c.connecting = false
	c.conn = conn
	c.connected = true
	c.reconnectAttempts = 0
	c.gen++
	gen := c.gen
	readCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.log.Info().Int("user_id", userID).Msg("connected")
	fanOut(c.log, &c.dispatch.connection, true)

	if userID != 0 {
		if err := c.sendFrame(newOutboundFrame(FrameAuth, map[string]any{"user_id": userID})); err != nil {
			c.log.Warn().Err(err).Msg("auth frame send failed")
		}
	}

	go c.readLoop(readCtx, conn, gen)
	go c.heartbeatLoop(conn, stop)
	return nil
}

// Disconnect ends the session: it cancels the reconnect and typing timers,
// stops the heartbeat, closes the transport with a normal closure, and
// resets the session state. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.currentRoomID = 0
	c.userID = 0
	c.token = ""
	c.reconnectAttempts = 0
	c.gen++
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if wasConnected {
		c.log.Info().Msg("disconnected")
		fanOut(c.log, &c.dispatch.connection, false)
	}
}

// Connected reports whether the transport is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// CurrentRoom returns the room currently subscribed to join/leave
// notifications, or 0 when none is.
func (c *Client) CurrentRoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoomID
}

// ReconnectAttempts returns the length of the current unbroken failure
// streak. A successful open resets it to zero.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

func (c *Client) wsURL(token string) string {
	base := strings.Replace(c.cfg.BaseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	u := strings.TrimRight(base, "/") + "/ws/chat/"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// ============================================================================
// Read loop and close handling
// ============================================================================

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		var frame Frame
		if jerr := json.Unmarshal(data, &frame); jerr != nil {
			// Malformed frames are protocol noise, not user-facing errors.
			c.log.Warn().Err(jerr).Msg("dropping unparseable frame")
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// A newer connection or an explicit Disconnect owns the state now.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	c.mu.Unlock()

	status := websocket.CloseStatus(err)
	c.log.Info().Err(err).Int("status", int(status)).Msg("connection closed")
	fanOut(c.log, &c.dispatch.connection, false)

	if status != websocket.StatusNormalClosure {
		c.scheduleReconnect()
	}
}

// ============================================================================
// Reconnection policy
// ============================================================================

// scheduleReconnect runs after every abnormal closure. The delay is fixed,
// the attempt budget applies per unbroken failure streak, and the whole
// policy is gated on the live AutoReconnect preference.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if !c.prefs.AutoReconnect {
		c.mu.Unlock()
		c.log.Info().Msg("auto-reconnect disabled, staying disconnected")
		return
	}
	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.log.Error().Int("attempts", c.cfg.MaxReconnectAttempts).Msg("giving up on reconnection")
		fanOut(c.log, &c.dispatch.errors, "max reconnection attempts reached")
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	userID, token := c.userID, c.token
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.log.Info().Int("attempt", attempt).Msg("reconnecting")
		// A failed dial schedules the next attempt itself.
		_ = c.Connect(context.Background(), userID, token)
	})
	c.mu.Unlock()
}

// ============================================================================
// Heartbeat
// ============================================================================

func (c *Client) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			open := c.connected && c.conn == conn
			c.mu.Unlock()
			if !open {
				continue
			}
			if err := c.sendFrame(newOutboundFrame(FramePing, map[string]any{})); err != nil {
				// Write errors do not close the logical session; actual
				// closure is detected by the read loop.
				c.log.Warn().Err(err).Msg("heartbeat send failed")
				fanOut(c.log, &c.dispatch.errors, "heartbeat send failed")
			}
		}
	}
}

// ============================================================================
// Outbound actions
// ============================================================================

func (c *Client) sendFrame(frame *outboundFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Warn().Str("type", frame.Type).Msg("not connected, dropping outbound frame")
		return ErrNotConnected
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frame.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s frame: %w", frame.Type, err)
	}
	return nil
}

// JoinRoom subscribes to join/leave notifications for roomID. At most one
// room is subscribed at a time.
func (c *Client) JoinRoom(roomID int) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		c.log.Warn().Int("room_id", roomID).Msg("not connected, dropping join")
		return ErrNotConnected
	}
	c.currentRoomID = roomID
	c.mu.Unlock()

	frame := newOutboundFrame(FrameJoinRoom, map[string]any{"room_id": roomID})
	frame.RoomID = roomID
	return c.sendFrame(frame)
}

// LeaveRoom unsubscribes from roomID. The current room is cleared only
// when it matches the argument.
func (c *Client) LeaveRoom(roomID int) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		c.log.Warn().Int("room_id", roomID).Msg("not connected, dropping leave")
		return ErrNotConnected
	}
	if c.currentRoomID == roomID {
		c.currentRoomID = 0
	}
	c.mu.Unlock()

	frame := newOutboundFrame(FrameLeaveRoom, map[string]any{"room_id": roomID})
	frame.RoomID = roomID
	return c.sendFrame(frame)
}

// SendMessage sends a chat message to roomID.
func (c *Client) SendMessage(roomID int, content string) error {
	frame := newOutboundFrame(FrameMessage, map[string]any{
		"room_id": roomID,
		"content": content,
	})
	frame.RoomID = roomID
	frame.UserID = c.localUserID()
	return c.sendFrame(frame)
}

// SendTypingIndicator signals typing state for roomID. A true signal arms
// a single-shot timer that automatically sends the corresponding false
// frame after the quiet window; each true signal restarts the window, so
// at most one pending auto-clear exists at a time.
func (c *Client) SendTypingIndicator(roomID int, isTyping bool) error {
	frame := newOutboundFrame(FrameTyping, map[string]any{
		"room_id":   roomID,
		"is_typing": isTyping,
	})
	frame.RoomID = roomID
	frame.UserID = c.localUserID()
	if err := c.sendFrame(frame); err != nil {
		return err
	}

	c.mu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if isTyping {
		c.typingTimer = time.AfterFunc(c.cfg.TypingTimeout, func() {
			c.mu.Lock()
			c.typingTimer = nil
			c.mu.Unlock()
			clear := newOutboundFrame(FrameTyping, map[string]any{
				"room_id":   roomID,
				"is_typing": false,
			})
			clear.RoomID = roomID
			clear.UserID = c.localUserID()
			if err := c.sendFrame(clear); err != nil {
				c.log.Warn().Err(err).Msg("typing auto-clear send failed")
			}
		})
	}
	c.mu.Unlock()
	return nil
}

// UpdateUserStatus broadcasts the local user's presence. No local state is
// retained beyond what was just sent.
func (c *Client) UpdateUserStatus(status string) error {
	frame := newOutboundFrame(FrameUserStatus, map[string]any{"status": status})
	frame.UserID = c.localUserID()
	return c.sendFrame(frame)
}

func (c *Client) localUserID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// ============================================================================
// Inbound frame dispatch
// ============================================================================

func (c *Client) handleFrame(frame *Frame) {
	switch frame.Type {
	case FrameMessage:
		var payload messagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.log.Warn().Err(err).Msg("dropping message frame with bad payload")
			return
		}
		msg := c.enrichMessage(&payload, frame)
		fanOut(c.log, &c.dispatch.messages, msg)
		c.maybeNotify(msg)

	case FrameTyping:
		c.mu.Lock()
		show := c.prefs.ShowTypingIndicators
		c.mu.Unlock()
		if !show {
			return
		}
		var indicator TypingIndicator
		if err := json.Unmarshal(frame.Data, &indicator); err != nil {
			c.log.Warn().Err(err).Msg("dropping typing frame with bad payload")
			return
		}
		if indicator.RoomID == 0 {
			indicator.RoomID = frame.RoomID
		}
		fanOut(c.log, &c.dispatch.typing, indicator)

	case FrameUserStatus:
		var status UserStatus
		if err := json.Unmarshal(frame.Data, &status); err != nil {
			c.log.Warn().Err(err).Msg("dropping user_status frame with bad payload")
			return
		}
		if status.UserID == 0 {
			status.UserID = frame.UserID
		}
		fanOut(c.log, &c.dispatch.status, status)

	case FrameRoomUpdate:
		// Membership-change notifications have no consumer yet.

	case FrameError:
		var payload errorPayload
		_ = json.Unmarshal(frame.Data, &payload)
		if payload.Error == "" {
			payload.Error = "Unknown error"
		}
		fanOut(c.log, &c.dispatch.errors, payload.Error)

	default:
		c.log.Warn().Str("type", frame.Type).Msg("unhandled frame type")
	}
}

func (c *Client) enrichMessage(payload *messagePayload, frame *Frame) Message {
	roomID := payload.RoomID
	if roomID == 0 {
		roomID = frame.RoomID
	}
	name := payload.SenderName
	if name == "" {
		name = fmt.Sprintf("User %d", payload.Sender)
	}
	sentAt := parseTimestamp(payload.Timestamp)
	if sentAt.IsZero() {
		sentAt = parseTimestamp(frame.Timestamp)
	}
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	return Message{
		ID:         payload.ID,
		RoomID:     roomID,
		SenderID:   payload.Sender,
		SenderName: name,
		Content:    payload.Content,
		SentAt:     sentAt,
		Delivered:  true,
	}
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
