package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/config"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/logging"
)

func newTestHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
}

func newFakeClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	return c
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub()
	subscribed := newFakeClient(hub, "command.queued")
	wildcard := newFakeClient(hub, WSChannelAll)
	other := newFakeClient(hub, "device.registered")
	for _, c := range []*WSClient{subscribed, wildcard, other} {
		hub.Register(c)
	}

	hub.Broadcast("command.queued", map[string]any{"device_id": "dev-1"})

	for name, c := range map[string]*WSClient{"subscribed": subscribed, "wildcard": wildcard} {
		select {
		case msg := <-c.send:
			var m WSMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.Type != WSTypeEvent || m.EventType != "command.queued" {
				t.Errorf("%s got %+v", name, m)
			}
		default:
			t.Errorf("%s client received nothing", name)
		}
	}
	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive the event")
	default:
	}
}

func TestHub_DeviceClientsOnlySeeOwnEvents(t *testing.T) {
	hub := newTestHub()
	devA := newFakeClient(hub, WSChannelAll)
	devA.deviceID = "dev-a"
	operator := newFakeClient(hub, WSChannelAll)
	hub.Register(devA)
	hub.Register(operator)

	listener := hub.DeviceListener()
	listener(device.Event{
		Type:     device.EventCommandQueued,
		DeviceID: "dev-b",
		Command:  &device.QueuedCommand{DeviceID: "dev-b", Command: "delete", Params: map[string]any{"path": "secret.txt"}},
	})

	select {
	case msg := <-devA.send:
		t.Fatalf("dev-a received another device's event: %s", msg)
	default:
	}
	select {
	case <-operator.send:
	default:
		t.Error("operator client received nothing")
	}

	listener(device.Event{Type: device.EventCommandQueued, DeviceID: "dev-a"})
	select {
	case <-devA.send:
	default:
		t.Error("dev-a did not receive its own event")
	}

	hub.Broadcast(WSChannelAll, map[string]any{"fleet": true})
	select {
	case <-devA.send:
	default:
		t.Error("dev-a did not receive a fleet-wide event")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := newTestHub()
	c := newFakeClient(hub)

	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Fatalf("count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(c)
	hub.Unregister(c) // second call must not double-close
	if hub.ClientCount() != 0 {
		t.Errorf("count = %d, want 0", hub.ClientCount())
	}
	c.trySend([]byte("late")) // send on a closed channel is absorbed
}

func TestValidChannel(t *testing.T) {
	for _, et := range device.AllEventTypes() {
		if !validChannel(string(et)) {
			t.Errorf("validChannel(%q) = false", et)
		}
	}
	for _, ch := range []string{"*", "device.registered"} {
		if !validChannel(ch) {
			t.Errorf("validChannel(%q) = false", ch)
		}
	}
	for _, ch := range []string{"", "device.*", "scene.activated"} {
		if validChannel(ch) {
			t.Errorf("validChannel(%q) = true", ch)
		}
	}
}

// dialWS connects to the server's /ws route. query is appended verbatim.
func dialWS(t *testing.T, f *fixture, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m WSMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestWebSocket_StreamsDeviceEvents(t *testing.T) {
	f := testServer(t, nil)
	conn, _, err := dialWS(t, f, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"command.queued", "bogus"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	resp := readWS(t, conn)
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
	payload, _ := resp.Payload.(map[string]any) //nolint:errcheck // checked below
	if unknown, _ := payload["unknown"].([]any); len(unknown) != 1 {
		t.Errorf("unknown channels = %v, want [bogus]", payload["unknown"])
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatal(err)
	}
	if pong := readWS(t, conn); pong.Type != WSTypePong || pong.ID != "2" {
		t.Errorf("ping reply = %+v", pong)
	}

	if _, err := f.devices.RegisterDevice("dev-1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.devices.QueueCommand("dev-1", "sync", nil); err != nil {
		t.Fatal(err)
	}

	// device.registered was not subscribed, so the next frame is the command.
	ev := readWS(t, conn)
	if ev.Type != WSTypeEvent || ev.EventType != string(device.EventCommandQueued) {
		t.Fatalf("event = %+v", ev)
	}
	body, _ := ev.Payload.(map[string]any) //nolint:errcheck // checked below
	if body["device_id"] != "dev-1" {
		t.Errorf("payload = %v", body)
	}
}

func TestWebSocket_RequiresTokenWhenJWTEnabled(t *testing.T) {
	f := testServer(t, func(d *Deps) { d.Security.JWT.Secret = testJWTSecret })

	_, resp, err := dialWS(t, f, "")
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}

	reg := decode[RegisterResponse](t, f.do(t, http.MethodPost, "/register", map[string]string{"device_id": "dev-1"}, nil))
	conn, _, err := dialWS(t, f, "?token="+reg.Token)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}
