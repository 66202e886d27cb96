package chatkit

import (
	"bytes"
	"strings"
	"testing"
)

func setLocalUser(c *Client, userID int) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func TestNotifyMention(t *testing.T) {
	notifier := &recordingNotifier{}
	store := &fakeStore{prefs: Preferences{PushNotifications: true}}
	client := newTestClient(t, &Config{Preferences: store, Notifier: notifier})
	setLocalUser(client, 42)

	injectFrame(client, FrameMessage,
		`{"id":7,"sender":99,"sender_name":"Dana","room_id":5,"content":"hello @42"}`)

	if got := notifier.count(); got != 1 {
		t.Fatalf("notifications shown = %d, want 1", got)
	}
	n := notifier.shown[0]
	if n.Type != NotificationMention {
		t.Errorf("type = %q, want %q", n.Type, NotificationMention)
	}
	if n.ID != "msg-7" {
		t.Errorf("id = %q, want msg-7", n.ID)
	}
	if n.Title != "Dana mentioned you" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Body != "hello @42" {
		t.Errorf("body = %q", n.Body)
	}
	if n.Data["room_id"] != 5 || n.Data["sender_id"] != 99 {
		t.Errorf("data = %v", n.Data)
	}
}

func TestNotifyBroadcastMention(t *testing.T) {
	notifier := &recordingNotifier{}
	store := &fakeStore{prefs: Preferences{PushNotifications: true}}
	client := newTestClient(t, &Config{Preferences: store, Notifier: notifier})
	setLocalUser(client, 42)

	injectFrame(client, FrameMessage,
		`{"id":8,"sender":99,"sender_name":"Dana","content":"heads up @all"}`)

	if got := notifier.count(); got != 1 {
		t.Fatalf("notifications shown = %d, want 1", got)
	}
	if notifier.shown[0].Type != NotificationMention {
		t.Errorf("type = %q, want mention for @all", notifier.shown[0].Type)
	}
}

func TestNotifyPlainMessage(t *testing.T) {
	notifier := &recordingNotifier{}
	store := &fakeStore{prefs: Preferences{PushNotifications: true}}
	client := newTestClient(t, &Config{Preferences: store, Notifier: notifier})
	setLocalUser(client, 42)

	injectFrame(client, FrameMessage,
		`{"id":9,"sender":99,"sender_name":"Dana","content":"no mention here"}`)

	if got := notifier.count(); got != 1 {
		t.Fatalf("notifications shown = %d, want 1", got)
	}
	n := notifier.shown[0]
	if n.Type != NotificationMessage {
		t.Errorf("type = %q, want %q", n.Type, NotificationMessage)
	}
	if n.Title != "New message from Dana" {
		t.Errorf("title = %q", n.Title)
	}
}

func TestNotifySkipsOwnMessages(t *testing.T) {
	notifier := &recordingNotifier{}
	sounder := &recordingSounder{}
	store := &fakeStore{prefs: Preferences{PushNotifications: true, SoundNotifications: true}}
	client := newTestClient(t, &Config{Preferences: store, Notifier: notifier, Sounder: sounder})
	setLocalUser(client, 42)

	injectFrame(client, FrameMessage, `{"id":10,"sender":42,"content":"my own echo"}`)

	if got := notifier.count(); got != 0 {
		t.Fatalf("notifications shown = %d for own message, want 0", got)
	}
	if got := sounder.plays.Load(); got != 0 {
		t.Fatalf("alert played %d times for own message, want 0", got)
	}
}

func TestNotifyPreferenceGates(t *testing.T) {
	cases := []struct {
		name        string
		push, sound bool
		wantShown   int
		wantPlays   int32
	}{
		{"both off", false, false, 0, 0},
		{"push only", true, false, 1, 0},
		{"sound only", false, true, 0, 1},
		{"both on", true, true, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			sounder := &recordingSounder{}
			store := &fakeStore{prefs: Preferences{
				PushNotifications:  tc.push,
				SoundNotifications: tc.sound,
			}}
			client := newTestClient(t, &Config{Preferences: store, Notifier: notifier, Sounder: sounder})
			setLocalUser(client, 42)

			injectFrame(client, FrameMessage, `{"id":1,"sender":99,"content":"ping"}`)

			if got := notifier.count(); got != tc.wantShown {
				t.Errorf("notifications shown = %d, want %d", got, tc.wantShown)
			}
			if got := sounder.plays.Load(); got != tc.wantPlays {
				t.Errorf("alert plays = %d, want %d", got, tc.wantPlays)
			}
		})
	}
}

func TestNotifyBodyTruncation(t *testing.T) {
	notifier := &recordingNotifier{}
	store := &fakeStore{prefs: Preferences{PushNotifications: true}}
	client := newTestClient(t, &Config{Preferences: store, Notifier: notifier})
	setLocalUser(client, 42)

	long := strings.Repeat("x", 150)
	injectFrame(client, FrameMessage, `{"id":2,"sender":99,"content":"`+long+`"}`)

	if got := notifier.count(); got != 1 {
		t.Fatalf("notifications shown = %d, want 1", got)
	}
	body := notifier.shown[0].Body
	if len(body) != notificationBodyLimit+3 {
		t.Fatalf("body length = %d, want %d", len(body), notificationBodyLimit+3)
	}
	if !strings.HasSuffix(body, "...") {
		t.Fatalf("body = %q, want ... suffix", body)
	}
}

func TestTruncateBody(t *testing.T) {
	if got := truncateBody("short", 100); got != "short" {
		t.Errorf("truncateBody(short) = %q", got)
	}
	exact := strings.Repeat("a", 100)
	if got := truncateBody(exact, 100); got != exact {
		t.Errorf("exactly-at-limit content was truncated")
	}
}

func TestNotificationIDFallback(t *testing.T) {
	n := buildNotification(Message{SenderID: 99, SenderName: "Dana", Content: "hi"}, 42)
	if n.ID == "" {
		t.Fatal("expected generated id for message without server id")
	}
	if strings.HasPrefix(n.ID, "msg-") {
		t.Fatalf("id = %q, want generated id, not msg- prefix", n.ID)
	}
}

// ============================================================================
// Alert tone
// ============================================================================

func TestChimeSamples(t *testing.T) {
	const rate = 8000
	samples := chimeSamples(rate)

	perTone := int(float64(rate) * chimeToneDuration.Seconds())
	if len(samples) != perTone*2 {
		t.Fatalf("sample count = %d, want %d", len(samples), perTone*2)
	}
	if samples[0] != 0 {
		t.Errorf("first sample = %d, want 0 (sine starts at zero crossing)", samples[0])
	}

	peak := func(seg []int16) int16 {
		var max int16
		for _, s := range seg {
			if s > max {
				max = s
			}
		}
		return max
	}
	early := peak(samples[:perTone/4])
	late := peak(samples[perTone*3/4 : perTone])
	if late >= early {
		t.Errorf("tone does not decay: early peak %d, late peak %d", early, late)
	}
}

func TestPCMSounder(t *testing.T) {
	var buf bytes.Buffer
	s := PCMSounder{W: &buf, SampleRate: 8000}
	if err := s.PlayAlert(); err != nil {
		t.Fatalf("PlayAlert: %v", err)
	}
	want := len(chimeSamples(8000)) * 2
	if buf.Len() != want {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), want)
	}
}
