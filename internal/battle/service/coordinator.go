// Package service coordinates battles: it owns the flow from join through
// submission judging to the single-winner broadcast.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codeverse/internal/battle/judge"
	"codeverse/internal/battle/model"
	"codeverse/internal/battle/repository"
	"codeverse/internal/battle/room"
	"codeverse/pkg/errors"
	"codeverse/pkg/utils/logger"
)

// Transport delivers events to connected clients. The coordinator never
// touches sockets directly.
type Transport interface {
	Send(connectionID, event string, payload interface{})
	Broadcast(roomID, event string, payload interface{})
	BroadcastExcept(roomID, exceptConnectionID, event string, payload interface{})
}

// Config tunes coordinator behavior.
type Config struct {
	// BattleDuration bounds a battle from the moment both players are in.
	// When it elapses with no winner the battle ends in a draw.
	BattleDuration time.Duration `yaml:"battleDuration"`
	// ShareOpponentCode relays live code edits to the opponent.
	ShareOpponentCode bool `yaml:"shareOpponentCode"`
	// NotifyOpponentAttempts tells the opponent about failed submissions.
	NotifyOpponentAttempts bool `yaml:"notifyOpponentAttempts"`
	// PersistTimeout bounds the background writes after a battle ends.
	PersistTimeout time.Duration `yaml:"persistTimeout"`
}

const (
	defaultBattleDuration = 15 * time.Minute
	defaultPersistTimeout = 10 * time.Second
)

// Coordinator wires the room registry, the judge and the persistence layer
// together. The registry decides every race; storage only records outcomes.
type Coordinator struct {
	cfg         Config
	registry    *room.Registry
	judge       *judge.Judge
	problems    repository.ProblemRepository
	battles     repository.BattleRepository
	submissions repository.SubmissionRepository
	events      repository.EventPublisher

	mu        sync.Mutex
	transport Transport
	timers    map[string]*time.Timer
}

// NewCoordinator creates a coordinator. The transport is attached later via
// Bind because the transport layer itself needs the coordinator for
// dispatching inbound events.
func NewCoordinator(
	cfg Config,
	registry *room.Registry,
	j *judge.Judge,
	problems repository.ProblemRepository,
	battles repository.BattleRepository,
	submissions repository.SubmissionRepository,
	events repository.EventPublisher,
) *Coordinator {
	if cfg.BattleDuration <= 0 {
		cfg.BattleDuration = defaultBattleDuration
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	return &Coordinator{
		cfg:         cfg,
		registry:    registry,
		judge:       j,
		problems:    problems,
		battles:     battles,
		submissions: submissions,
		events:      events,
		timers:      make(map[string]*time.Timer),
	}
}

// Bind attaches the transport. Must be called before any event is handled.
func (c *Coordinator) Bind(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

func (c *Coordinator) getTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// CreateBattle provisions a new battle room bound to a problem and records
// the battle row. The returned id doubles as the room id players join.
func (c *Coordinator) CreateBattle(ctx context.Context, problemID int64) (room.View, error) {
	if _, err := c.problems.GetByID(ctx, nil, problemID); err != nil {
		if err == repository.ErrProblemNotFound {
			return room.View{}, errors.New(errors.ProblemNotFound)
		}
		return room.View{}, errors.Wrap(err, errors.DatabaseError)
	}

	battleID := uuid.NewString()
	view, err := c.registry.Create(battleID, problemID)
	if err != nil {
		return room.View{}, err
	}
	if err := c.battles.Create(ctx, nil, &repository.Battle{BattleID: battleID, ProblemID: problemID}); err != nil {
		c.registry.Remove(battleID)
		return room.View{}, errors.Wrap(err, errors.BattleCreateFailed)
	}
	logger.Info(ctx, "battle created",
		zap.String("battle_id", battleID),
		zap.Int64("problem_id", problemID))
	return view, nil
}

// GetBattle returns the durable record of a battle.
func (c *Coordinator) GetBattle(ctx context.Context, battleID string) (*repository.Battle, error) {
	battle, err := c.battles.GetByID(ctx, nil, battleID)
	if err != nil {
		if err == repository.ErrBattleNotFound {
			return nil, errors.New(errors.BattleNotFound)
		}
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return battle, nil
}

// HandleJoin processes a join request from one connection.
func (c *Coordinator) HandleJoin(ctx context.Context, connectionID, userID string, req model.JoinRequest) {
	view, becameReady, err := c.registry.Join(req.RoomID, connectionID, userID)
	if err != nil {
		c.sendError(connectionID, err)
		return
	}

	transport := c.getTransport()
	transport.BroadcastExcept(req.RoomID, connectionID, model.EventOpponentJoined, model.PresencePayload{
		RoomID: req.RoomID,
		UserID: userID,
	})

	if becameReady {
		transport.Broadcast(req.RoomID, model.EventReady, model.ReadyPayload{
			RoomID:    req.RoomID,
			ProblemID: view.ProblemID,
			UserIDs:   view.UserIDs(),
		})
		c.startTimer(req.RoomID)
		logger.Info(ctx, "battle ready",
			zap.String("battle_id", req.RoomID),
			zap.Strings("users", view.UserIDs()))
	}
}

// HandleSubmit validates a submission and judges it asynchronously. The
// handler returns immediately so one player's long-running code never blocks
// the opponent's events.
func (c *Coordinator) HandleSubmit(ctx context.Context, connectionID, userID string, req model.SubmitRequest) {
	view, err := c.registry.Get(req.RoomID)
	if err != nil {
		c.sendError(connectionID, err)
		return
	}
	member := false
	for _, m := range view.Members {
		if m.ConnectionID == connectionID {
			member = true
			break
		}
	}
	if !member {
		c.sendError(connectionID, errors.New(errors.NotInRoom))
		return
	}
	switch view.Status {
	case room.StatusWaiting:
		c.sendError(connectionID, errors.New(errors.RoomNotReady))
		return
	case room.StatusEnded:
		c.getTransport().Send(connectionID, model.EventAlreadyDecided, model.ResultPayload{
			RoomID:   req.RoomID,
			WinnerID: view.WinnerID,
		})
		return
	}
	if req.Code == "" {
		c.sendError(connectionID, errors.New(errors.InvalidParams))
		return
	}

	go c.judgeSubmission(connectionID, userID, view.ProblemID, req)
}

// judgeSubmission runs in its own goroutine per submission.
func (c *Coordinator) judgeSubmission(connectionID, userID string, problemID int64, req model.SubmitRequest) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "panic while judging submission",
				zap.String("battle_id", req.RoomID),
				zap.String("user_id", userID),
				zap.Any("panic", r))
			c.sendError(connectionID, errors.New(errors.JudgeSystemError))
		}
	}()

	ctx := context.Background()
	problem, err := c.problems.GetByID(ctx, nil, problemID)
	if err != nil {
		logger.Error(ctx, "load problem for judging",
			zap.String("battle_id", req.RoomID),
			zap.Int64("problem_id", problemID),
			zap.Error(err))
		c.sendError(connectionID, errors.New(errors.JudgeSystemError))
		return
	}

	verdict, err := c.judge.Evaluate(ctx, problem, req.Code, req.Language)
	if err != nil {
		logger.Error(ctx, "judge submission",
			zap.String("battle_id", req.RoomID),
			zap.String("user_id", userID),
			zap.Error(err))
		c.sendError(connectionID, errors.New(errors.JudgeSystemError))
		return
	}

	go c.archiveSubmission(req, userID, problemID, verdict.Passed)

	if verdict.Passed {
		c.concludeWin(ctx, connectionID, userID, req.RoomID, verdict)
		return
	}

	// Failed verdict: only relevant if the battle is still running.
	view, err := c.registry.Get(req.RoomID)
	if err == nil && view.Status == room.StatusEnded {
		c.getTransport().Send(connectionID, model.EventAlreadyDecided, model.ResultPayload{
			RoomID:   req.RoomID,
			WinnerID: view.WinnerID,
		})
		return
	}
	transport := c.getTransport()
	transport.Send(connectionID, model.EventFail, model.FailPayload{
		RoomID:  req.RoomID,
		Results: caseResultPayloads(verdict.Results),
	})
	if c.cfg.NotifyOpponentAttempts {
		transport.BroadcastExcept(req.RoomID, connectionID, model.EventOpponentAttempt, model.PresencePayload{
			RoomID: req.RoomID,
			UserID: userID,
		})
	}
}

// concludeWin races the passing verdict against any concurrent winner or
// timeout. Exactly one caller per battle gets through the registry CAS.
func (c *Coordinator) concludeWin(ctx context.Context, connectionID, userID, roomID string, verdict judge.Verdict) {
	view, won := c.registry.MarkEnded(roomID, userID, room.EndReasonWin)
	if !won {
		c.getTransport().Send(connectionID, model.EventAlreadyDecided, model.ResultPayload{
			RoomID:   roomID,
			WinnerID: view.WinnerID,
		})
		return
	}
	c.cancelTimer(roomID)

	c.getTransport().Broadcast(roomID, model.EventResult, model.ResultPayload{
		RoomID:   roomID,
		WinnerID: userID,
		Results:  caseResultPayloads(verdict.Results),
	})
	logger.Info(ctx, "battle won",
		zap.String("battle_id", roomID),
		zap.String("winner_id", userID))

	c.persistOutcome(view, userID, room.EndReasonWin)
}

// Timeout ends a battle with no winner once its duration elapses. Exposed
// for the timer callback and for administrative force-ends.
func (c *Coordinator) Timeout(roomID string) {
	view, won := c.registry.MarkEnded(roomID, "", room.EndReasonTimeout)
	if !won {
		return
	}
	c.cancelTimer(roomID)
	c.getTransport().Broadcast(roomID, model.EventTimeout, model.TimeoutPayload{RoomID: roomID})
	logger.Info(context.Background(), "battle timed out", zap.String("battle_id", roomID))

	c.persistOutcome(view, "", room.EndReasonTimeout)
}

// HandleDisconnect removes a connection from its room. Disconnecting is not
// a forfeit; the opponent can still win by submitting a passing solution.
func (c *Coordinator) HandleDisconnect(connectionID string) {
	view, userID, ok := c.registry.Leave(connectionID)
	if !ok {
		return
	}
	if len(view.Members) > 0 {
		c.getTransport().Broadcast(view.ID, model.EventOpponentLeft, model.PresencePayload{
			RoomID: view.ID,
			UserID: userID,
		})
		return
	}
	// Last player gone: stop the clock. An undecided battle is recorded as
	// abandoned.
	c.cancelTimer(view.ID)
	if view.Status != room.StatusEnded {
		c.persistOutcome(view, "", room.EndReasonAbandoned)
	}
}

// HandleCodeChange relays live code to the opponent when sharing is enabled.
func (c *Coordinator) HandleCodeChange(ctx context.Context, connectionID, userID string, req model.CodeChangeRequest) {
	if !c.cfg.ShareOpponentCode {
		return
	}
	view, err := c.registry.RoomOf(connectionID)
	if err != nil || view.ID != req.RoomID || view.Status == room.StatusEnded {
		return
	}
	c.getTransport().BroadcastExcept(req.RoomID, connectionID, model.EventCodeUpdate, model.CodeUpdatePayload{
		RoomID: req.RoomID,
		UserID: userID,
		Code:   req.Code,
	})
}

// Shutdown cancels all outstanding battle timers.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
}

// archiveSubmission is fire and forget: a lost archive row never affects
// the battle outcome.
func (c *Coordinator) archiveSubmission(req model.SubmitRequest, userID string, problemID int64, passed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "panic while archiving submission", zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()
	err := c.submissions.Record(ctx, &repository.Submission{
		SubmissionID: uuid.NewString(),
		BattleID:     req.RoomID,
		UserID:       userID,
		ProblemID:    problemID,
		LanguageID:   req.Language,
		Passed:       passed,
	}, req.Code)
	if err != nil {
		logger.Warn(ctx, "archive submission",
			zap.String("battle_id", req.RoomID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// persistOutcome records the terminal state and publishes the ended event.
// Failures are logged; the in-memory registry already decided the battle.
func (c *Coordinator) persistOutcome(view room.View, winnerID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()

	if err := c.battles.MarkEnded(ctx, nil, view.ID, winnerID, reason); err != nil && err != repository.ErrBattleEnded {
		logger.Error(ctx, "record battle outcome",
			zap.String("battle_id", view.ID),
			zap.String("reason", reason),
			zap.Error(err))
	}
	if err := c.events.PublishBattleEnded(ctx, model.BattleEndedEvent{
		BattleID:  view.ID,
		ProblemID: view.ProblemID,
		WinnerID:  winnerID,
		Reason:    reason,
		EndedAt:   time.Now().Unix(),
	}); err != nil {
		logger.Warn(ctx, "publish battle ended event",
			zap.String("battle_id", view.ID),
			zap.Error(err))
	}
}

func (c *Coordinator) startTimer(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.timers[roomID]; exists {
		return
	}
	c.timers[roomID] = time.AfterFunc(c.cfg.BattleDuration, func() {
		c.Timeout(roomID)
	})
}

func (c *Coordinator) cancelTimer(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.timers[roomID]; ok {
		timer.Stop()
		delete(c.timers, roomID)
	}
}

func (c *Coordinator) sendError(connectionID string, err error) {
	code := errors.GetCode(err)
	c.getTransport().Send(connectionID, model.EventError, model.ErrorPayload{
		Code:    int(code),
		Message: code.Message(),
	})
}

func caseResultPayloads(results []judge.CaseResult) []model.CaseResultPayload {
	payloads := make([]model.CaseResultPayload, len(results))
	for i, r := range results {
		payloads[i] = model.CaseResultPayload{
			Input:    r.Input,
			Expected: r.Expected,
			Actual:   r.Actual,
			Passed:   r.Passed,
		}
	}
	return payloads
}
