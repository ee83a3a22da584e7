package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codeverse/internal/battle/model"
	"codeverse/internal/battle/room"
	pkgerrors "codeverse/pkg/errors"
	"codeverse/pkg/utils/logger"
)

const sendBufferSize = 64

// EventHandler consumes inbound battle events. Implemented by the battle
// coordinator.
type EventHandler interface {
	HandleJoin(ctx context.Context, connectionID, userID string, req model.JoinRequest)
	HandleSubmit(ctx context.Context, connectionID, userID string, req model.SubmitRequest)
	HandleCodeChange(ctx context.Context, connectionID, userID string, req model.CodeChangeRequest)
	HandleDisconnect(connectionID string)
}

// MemberLister resolves a room id into its current connections. Implemented
// by the room registry.
type MemberLister interface {
	Members(roomID string) []room.Member
}

// Hub owns all live websocket connections and implements the coordinator's
// Transport on top of them.
type Hub struct {
	handler  EventHandler
	members  MemberLister
	auth     *Authenticator
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub.
func NewHub(handler EventHandler, members MemberLister, auth *Authenticator) *Hub {
	return &Hub{
		handler: handler,
		members: members,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeWS is the gin handler that upgrades a connection and runs its pumps.
func (h *Hub) ServeWS(c *gin.Context) {
	userID, err := h.auth.Identify(c.Request)
	if err != nil {
		code := pkgerrors.GetCode(err)
		c.JSON(code.HTTPStatus(), gin.H{"code": int(code), "message": code.Message()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade", zap.Error(err))
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		id:     uuid.NewString(),
		userID: userID,
	}
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()

	logger.Info(c.Request.Context(), "websocket connected",
		zap.String("connection_id", cl.id),
		zap.String("user_id", userID))

	go cl.writePump()
	go cl.readPump()
}

// dispatch routes one inbound frame to the handler.
func (h *Hub) dispatch(c *client, raw []byte) {
	var envelope model.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.sendErrorCode(c, pkgerrors.InvalidParams)
		return
	}
	ctx := context.Background()
	switch envelope.Event {
	case model.EventJoin:
		var req model.JoinRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.RoomID == "" {
			h.sendErrorCode(c, pkgerrors.InvalidParams)
			return
		}
		h.handler.HandleJoin(ctx, c.id, c.userID, req)
	case model.EventSubmit:
		var req model.SubmitRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.RoomID == "" {
			h.sendErrorCode(c, pkgerrors.InvalidParams)
			return
		}
		h.handler.HandleSubmit(ctx, c.id, c.userID, req)
	case model.EventCodeChange:
		var req model.CodeChangeRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.RoomID == "" {
			h.sendErrorCode(c, pkgerrors.InvalidParams)
			return
		}
		h.handler.HandleCodeChange(ctx, c.id, c.userID, req)
	default:
		h.sendErrorCode(c, pkgerrors.InvalidParams)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if current, ok := h.clients[c.id]; !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.closeSend()
	h.handler.HandleDisconnect(c.id)
	logger.Info(context.Background(), "websocket disconnected",
		zap.String("connection_id", c.id),
		zap.String("user_id", c.userID))
}

// Send delivers an event to one connection.
func (h *Hub) Send(connectionID, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(frame)
	}
}

// Broadcast delivers an event to every connection in a room.
func (h *Hub) Broadcast(roomID, event string, payload interface{}) {
	h.broadcast(roomID, "", event, payload)
}

// BroadcastExcept delivers an event to every connection in a room but one.
func (h *Hub) BroadcastExcept(roomID, exceptConnectionID, event string, payload interface{}) {
	h.broadcast(roomID, exceptConnectionID, event, payload)
}

func (h *Hub) broadcast(roomID, exceptConnectionID, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	for _, member := range h.members.Members(roomID) {
		if member.ConnectionID == exceptConnectionID {
			continue
		}
		h.mu.RLock()
		c, ok := h.clients[member.ConnectionID]
		h.mu.RUnlock()
		if ok {
			c.enqueue(frame)
		}
	}
}

func (h *Hub) sendErrorCode(c *client, code pkgerrors.ErrorCode) {
	frame, err := encodeFrame(model.EventError, model.ErrorPayload{
		Code:    int(code),
		Message: code.Message(),
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Envelope{Event: event, Data: data})
}
