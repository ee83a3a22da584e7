package model

import "encoding/json"

// Client-to-server events.
const (
	EventJoin       = "battle:join"
	EventSubmit     = "battle:submit"
	EventCodeChange = "battle:code_change"
)

// Server-to-client events.
const (
	EventReady           = "battle:ready"
	EventResult          = "battle:result"
	EventFail            = "battle:fail"
	EventError           = "battle:error"
	EventAlreadyDecided  = "battle:already_decided"
	EventTimeout         = "battle:timeout"
	EventOpponentJoined  = "battle:opponent_joined"
	EventOpponentLeft    = "battle:opponent_left"
	EventOpponentAttempt = "battle:opponent_attempted"
	EventCodeUpdate      = "battle:code_update"
)

// Envelope is the wire framing for one websocket message in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of EventJoin.
type JoinRequest struct {
	RoomID string `json:"roomId"`
}

// SubmitRequest is the payload of EventSubmit.
type SubmitRequest struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// CodeChangeRequest is the payload of EventCodeChange, relayed unjudged
// to the opponent when code sharing is enabled.
type CodeChangeRequest struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// CaseResultPayload is one judged test case in a result/fail payload.
type CaseResultPayload struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// ReadyPayload is the payload of EventReady.
type ReadyPayload struct {
	RoomID    string   `json:"roomId"`
	ProblemID int64    `json:"problemId"`
	UserIDs   []string `json:"userIds"`
}

// ResultPayload is the payload of EventResult: the single winner broadcast.
type ResultPayload struct {
	RoomID   string              `json:"roomId"`
	WinnerID string              `json:"winnerId"`
	Results  []CaseResultPayload `json:"results"`
}

// FailPayload is the payload of EventFail, sent to the submitter only.
type FailPayload struct {
	RoomID  string              `json:"roomId"`
	Results []CaseResultPayload `json:"results"`
}

// ErrorPayload is the payload of EventError.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TimeoutPayload is the payload of EventTimeout: battle ended, no winner.
type TimeoutPayload struct {
	RoomID string `json:"roomId"`
}

// PresencePayload is the payload of opponent joined/left events.
type PresencePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// CodeUpdatePayload is the payload of EventCodeUpdate, the opponent's live
// code relayed without judging.
type CodeUpdatePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// BattleEndedEvent is the message published to the event stream when a
// battle reaches a terminal state.
type BattleEndedEvent struct {
	BattleID  string `json:"battleId"`
	ProblemID int64  `json:"problemId"`
	WinnerID  string `json:"winnerId,omitempty"`
	Reason    string `json:"reason"`
	EndedAt   int64  `json:"endedAt"`
}
