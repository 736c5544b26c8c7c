package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/videocontrol"
)

func dialHub(t *testing.T, hub *Hub, greeting ...[]byte) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, greeting...)
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return hub.Clients() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return msg
}

func TestHub_Greeting(t *testing.T) {
	hub := NewHub()
	hello, _ := encode(TypeStatus, map[string]string{"phase": "inactive"})

	conn := dialHub(t, hub, hello)

	msg := readMessage(t, conn)
	if msg.Type != TypeStatus {
		t.Errorf("expected status greeting, got %s", msg.Type)
	}
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	hub := NewHub()
	bus := events.New()
	if err := hub.Subscribe(bus); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	conn := dialHub(t, hub)

	bus.PublishFrame(events.Frame{
		Gesture:     &gesture.Result{Gesture: gesture.LabelVictory, Confidence: 88, Handedness: gesture.Left},
		TimestampMs: 42,
	})

	msg := readMessage(t, conn)
	if msg.Type != TypeFrame {
		t.Fatalf("expected frame message, got %s", msg.Type)
	}
	var f events.Frame
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		t.Fatalf("decode frame failed: %v", err)
	}
	if f.Gesture == nil || f.Gesture.Gesture != gesture.LabelVictory || f.TimestampMs != 42 {
		t.Errorf("unexpected frame %+v", f)
	}

	bus.PublishEasterEgg(events.EasterEgg{At: time.Now(), DisplayFor: gesture.EasterEggDisplay})
	if msg := readMessage(t, conn); msg.Type != TypeEasterEgg {
		t.Errorf("expected easter egg message, got %s", msg.Type)
	}
}

func TestHub_Notifier(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	hub.VideoAction(videocontrol.AppliedAction{Action: videocontrol.ActionForward, Applied: true})

	msg := readMessage(t, conn)
	if msg.Type != TypeVideoAction {
		t.Fatalf("expected video action, got %s", msg.Type)
	}
	var a videocontrol.AppliedAction
	json.Unmarshal(msg.Data, &a)
	if a.Action != videocontrol.ActionForward {
		t.Errorf("expected forward, got %s", a.Action)
	}
}

func TestHub_PlayerState(t *testing.T) {
	hub := NewHub()
	player := NewRemotePlayer(hub)
	hub.AttachPlayer(player)
	conn := dialHub(t, hub)

	report := `{"type":"player_state","data":{"ready":true,"current_time":12.5,"duration":300,"state":2}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(report)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, player.Ready)

	if d := player.Duration(); d != 5*time.Minute {
		t.Errorf("expected duration 5m, got %v", d)
	}

	if err := player.SeekTo(20 * time.Second); err != nil {
		t.Fatalf("SeekTo failed: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != TypePlayerCommand {
		t.Fatalf("expected player command, got %s", msg.Type)
	}
	var cmd PlayerCommand
	json.Unmarshal(msg.Data, &cmd)
	if cmd.Command != CommandSeek || cmd.Seconds != 20 {
		t.Errorf("unexpected command %+v", cmd)
	}
}

func TestHub_IgnoresMalformedMessages(t *testing.T) {
	hub := NewHub()
	player := NewRemotePlayer(hub)
	hub.AttachPlayer(player)
	conn := dialHub(t, hub)

	conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"player_state","data":"bad"}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"player_state","data":{"ready":true}}`))

	waitFor(t, player.Ready)
	if hub.Clients() != 1 {
		t.Error("client should still be connected")
	}
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })

	// Broadcasting with no clients is a no-op.
	hub.Broadcast(TypeStatus, map[string]string{})
}
