package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeverse/internal/battle/model"
	"codeverse/internal/battle/room"
)

type recordedCall struct {
	name         string
	connectionID string
	userID       string
	roomID       string
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recordingHandler) HandleJoin(ctx context.Context, connectionID, userID string, req model.JoinRequest) {
	r.record(recordedCall{name: "join", connectionID: connectionID, userID: userID, roomID: req.RoomID})
}

func (r *recordingHandler) HandleSubmit(ctx context.Context, connectionID, userID string, req model.SubmitRequest) {
	r.record(recordedCall{name: "submit", connectionID: connectionID, userID: userID, roomID: req.RoomID})
}

func (r *recordingHandler) HandleCodeChange(ctx context.Context, connectionID, userID string, req model.CodeChangeRequest) {
	r.record(recordedCall{name: "code_change", connectionID: connectionID, userID: userID, roomID: req.RoomID})
}

func (r *recordingHandler) HandleDisconnect(connectionID string) {
	r.record(recordedCall{name: "disconnect", connectionID: connectionID})
}

func (r *recordingHandler) record(c recordedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingHandler) waitFor(t *testing.T, name string) recordedCall {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, c := range r.calls {
			if c.name == name {
				r.mu.Unlock()
				return c
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("handler call %q never happened", name)
	return recordedCall{}
}

func newTestHub(t *testing.T) (*Hub, *recordingHandler, *room.Registry, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := &recordingHandler{}
	registry := room.NewRegistry()
	hub := NewHub(handler, registry, NewAuthenticator(AuthConfig{JWTSecret: testSecret, AllowAnonymous: true}))

	router := gin.New()
	router.GET("/ws", hub.ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, handler, registry, server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(model.Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var envelope model.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return envelope
}

func TestHubDispatchesJoin(t *testing.T) {
	_, handler, _, server := newTestHub(t)
	conn := dialWS(t, server)

	writeEnvelope(t, conn, model.EventJoin, model.JoinRequest{RoomID: "r1"})
	call := handler.waitFor(t, "join")
	if call.roomID != "r1" {
		t.Fatalf("join room = %q, want r1", call.roomID)
	}
	if !strings.HasPrefix(call.userID, "guest-") {
		t.Fatalf("user id = %q", call.userID)
	}
}

func TestHubRejectsMalformedFrame(t *testing.T) {
	_, _, _, server := newTestHub(t)
	conn := dialWS(t, server)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	envelope := readEnvelope(t, conn)
	if envelope.Event != model.EventError {
		t.Fatalf("event = %q, want %q", envelope.Event, model.EventError)
	}
}

func TestHubRejectsUnknownEvent(t *testing.T) {
	_, _, _, server := newTestHub(t)
	conn := dialWS(t, server)

	writeEnvelope(t, conn, "battle:mystery", map[string]string{"roomId": "r1"})
	envelope := readEnvelope(t, conn)
	if envelope.Event != model.EventError {
		t.Fatalf("event = %q, want %q", envelope.Event, model.EventError)
	}
}

func TestHubDisconnectNotifiesHandler(t *testing.T) {
	_, handler, _, server := newTestHub(t)
	conn := dialWS(t, server)

	writeEnvelope(t, conn, model.EventJoin, model.JoinRequest{RoomID: "r1"})
	join := handler.waitFor(t, "join")
	_ = conn.Close()

	disconnect := handler.waitFor(t, "disconnect")
	if disconnect.connectionID != join.connectionID {
		t.Fatalf("disconnect for %q, joined as %q", disconnect.connectionID, join.connectionID)
	}
}

func TestHubSendRacingUnregisterDoesNotPanic(t *testing.T) {
	hub, _, _, _ := newTestHub(t)

	for i := 0; i < 100; i++ {
		c := &client{hub: hub, send: make(chan []byte, sendBufferSize), id: "conn-race", userID: "u1"}
		hub.mu.Lock()
		hub.clients[c.id] = c
		hub.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Send(c.id, model.EventError, model.ErrorPayload{Code: 1})
			}
		}()
		hub.unregister(c)
		wg.Wait()

		// Drains until the close; hangs here if unregister never closed
		// the channel.
		for range c.send {
		}
	}
}

func TestHubBroadcastReachesRoomMembers(t *testing.T) {
	hub, handler, registry, server := newTestHub(t)
	connA := dialWS(t, server)
	connB := dialWS(t, server)

	writeEnvelope(t, connA, model.EventJoin, model.JoinRequest{RoomID: "r1"})
	callA := handler.waitFor(t, "join")
	writeEnvelope(t, connB, model.EventJoin, model.JoinRequest{RoomID: "r1"})

	// Register membership the way the coordinator would.
	if _, err := registry.Create("r1", 1); err != nil {
		t.Fatalf("create room: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		handler.mu.Lock()
		joins := 0
		for _, c := range handler.calls {
			if c.name == "join" {
				joins++
				_, _, _ = registry.Join("r1", c.connectionID, c.userID)
			}
		}
		handler.mu.Unlock()
		if joins == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second join never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast("r1", model.EventTimeout, model.TimeoutPayload{RoomID: "r1"})
	for _, conn := range []*websocket.Conn{connA, connB} {
		envelope := readEnvelope(t, conn)
		if envelope.Event != model.EventTimeout {
			t.Fatalf("event = %q, want %q", envelope.Event, model.EventTimeout)
		}
	}

	hub.BroadcastExcept("r1", callA.connectionID, model.EventOpponentLeft, model.PresencePayload{RoomID: "r1"})
	envelope := readEnvelope(t, connB)
	if envelope.Event != model.EventOpponentLeft {
		t.Fatalf("event = %q, want %q", envelope.Event, model.EventOpponentLeft)
	}
}
