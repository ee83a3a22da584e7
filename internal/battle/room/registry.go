// Package room tracks live battle rooms and their membership. The registry
// is the single in-memory arbiter of room state; durable battle records are
// written elsewhere from its transitions.
package room

import (
	"sync"
	"time"

	"codeverse/pkg/errors"
)

// Status is the lifecycle state of a room.
type Status string

const (
	// StatusWaiting means fewer than two players have joined.
	StatusWaiting Status = "waiting"
	// StatusReady means both players are present and submissions are accepted.
	StatusReady Status = "ready"
	// StatusEnded is terminal.
	StatusEnded Status = "ended"
)

// End reasons recorded on the terminal transition.
const (
	EndReasonWin       = "win"
	EndReasonTimeout   = "timeout"
	EndReasonAbandoned = "abandoned"
)

const maxPlayers = 2

// Member is one connection inside a room.
type Member struct {
	ConnectionID string
	UserID       string
}

// View is an immutable snapshot of a room.
type View struct {
	ID        string
	ProblemID int64
	Status    Status
	WinnerID  string
	EndReason string
	CreatedAt time.Time
	Members   []Member
}

// UserIDs returns the distinct user ids in join order.
func (v View) UserIDs() []string {
	seen := make(map[string]bool, len(v.Members))
	ids := make([]string, 0, len(v.Members))
	for _, m := range v.Members {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

type roomState struct {
	id        string
	problemID int64
	status    Status
	winnerID  string
	endReason string
	createdAt time.Time
	members   []Member
}

func (r *roomState) view() View {
	members := make([]Member, len(r.members))
	copy(members, r.members)
	return View{
		ID:        r.id,
		ProblemID: r.problemID,
		Status:    r.status,
		WinnerID:  r.winnerID,
		EndReason: r.endReason,
		CreatedAt: r.createdAt,
		Members:   members,
	}
}

func (r *roomState) memberIndex(connectionID string) int {
	for i, m := range r.members {
		if m.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}

func (r *roomState) distinctUsers() map[string]bool {
	users := make(map[string]bool, len(r.members))
	for _, m := range r.members {
		users[m.UserID] = true
	}
	return users
}

// Registry holds all live rooms. A connection belongs to at most one room at
// a time; joining a second room implicitly leaves the first.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	conns map[string]string // connectionID -> roomID
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		conns: make(map[string]string),
		now:   time.Now,
	}
}

// Create registers a new waiting room bound to a problem.
func (g *Registry) Create(roomID string, problemID int64) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[roomID]; ok {
		return View{}, errors.Newf(errors.BattleCreateFailed, "room %s already exists", roomID)
	}
	r := &roomState{
		id:        roomID,
		problemID: problemID,
		status:    StatusWaiting,
		createdAt: g.now(),
	}
	g.rooms[roomID] = r
	return r.view(), nil
}

// Join adds a connection to a room. Re-joining with the same connection id is
// idempotent. A third distinct user is rejected. The returned becameReady is
// true only on the transition that made the room ready, so the caller can
// announce the battle start exactly once.
func (g *Registry) Join(roomID, connectionID, userID string) (View, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return View{}, false, errors.New(errors.RoomNotFound)
	}
	if r.status == StatusEnded {
		return View{}, false, errors.New(errors.RoomClosed)
	}

	if idx := r.memberIndex(connectionID); idx >= 0 {
		// Same connection, same room: no-op.
		if r.members[idx].UserID == userID {
			return r.view(), false, nil
		}
		r.members[idx].UserID = userID
	} else {
		users := r.distinctUsers()
		if !users[userID] && len(users) >= maxPlayers {
			return View{}, false, errors.New(errors.RoomFull)
		}
		if prev, ok := g.conns[connectionID]; ok && prev != roomID {
			g.leaveLocked(prev, connectionID)
		}
		r.members = append(r.members, Member{ConnectionID: connectionID, UserID: userID})
		g.conns[connectionID] = roomID
	}

	becameReady := false
	if r.status == StatusWaiting && len(r.distinctUsers()) == maxPlayers {
		r.status = StatusReady
		becameReady = true
	}
	return r.view(), becameReady, nil
}

// Leave removes a connection from whatever room it is in. Rooms left with no
// members are dropped from the registry. Leaving never ends a battle; a
// disconnected player may lose on the opponent's submission while away.
func (g *Registry) Leave(connectionID string) (View, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok := g.conns[connectionID]
	if !ok {
		return View{}, "", false
	}
	r, exists := g.rooms[roomID]
	userID := g.leaveLocked(roomID, connectionID)
	if !exists {
		return View{}, "", false
	}
	// Snapshot reflects the room after removal, before any GC.
	return r.view(), userID, true
}

func (g *Registry) leaveLocked(roomID, connectionID string) string {
	delete(g.conns, connectionID)
	r, ok := g.rooms[roomID]
	if !ok {
		return ""
	}
	idx := r.memberIndex(connectionID)
	if idx < 0 {
		return ""
	}
	userID := r.members[idx].UserID
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	if len(r.members) == 0 {
		delete(g.rooms, roomID)
	}
	return userID
}

// Remove drops a room outright, e.g. when provisioning fails after the room
// was registered.
func (g *Registry) Remove(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return
	}
	for _, m := range r.members {
		delete(g.conns, m.ConnectionID)
	}
	delete(g.rooms, roomID)
}

// Get returns a snapshot of a room.
func (g *Registry) Get(roomID string) (View, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return View{}, errors.New(errors.RoomNotFound)
	}
	return r.view(), nil
}

// RoomOf returns the room a connection currently belongs to.
func (g *Registry) RoomOf(connectionID string) (View, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.conns[connectionID]
	if !ok {
		return View{}, errors.New(errors.NotInRoom)
	}
	r, ok := g.rooms[roomID]
	if !ok {
		return View{}, errors.New(errors.RoomNotFound)
	}
	return r.view(), nil
}

// MarkEnded atomically moves a room to the ended state. It succeeds exactly
// once per room; concurrent winners race through here and every caller after
// the first gets won=false with the already-recorded snapshot.
func (g *Registry) MarkEnded(roomID, winnerID, reason string) (View, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return View{}, false
	}
	if r.status == StatusEnded {
		return r.view(), false
	}
	r.status = StatusEnded
	r.winnerID = winnerID
	r.endReason = reason
	return r.view(), true
}

// Members lists the connections currently in a room. Used by the transport
// layer to resolve broadcast targets.
func (g *Registry) Members(roomID string) []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]Member, len(r.members))
	copy(members, r.members)
	return members
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
