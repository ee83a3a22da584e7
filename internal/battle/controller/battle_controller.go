// Package controller exposes the battle REST endpoints: battles are created
// over HTTP, then fought over the websocket.
package controller

import (
	"time"

	"github.com/gin-gonic/gin"

	"codeverse/internal/battle/repository"
	"codeverse/internal/battle/service"
	"codeverse/pkg/utils/response"
)

// BattleController handles battle HTTP endpoints.
type BattleController struct {
	coordinator *service.Coordinator
}

// NewBattleController creates a new BattleController.
func NewBattleController(coordinator *service.Coordinator) *BattleController {
	return &BattleController{coordinator: coordinator}
}

// CreateBattleRequest is the body of POST /battles.
type CreateBattleRequest struct {
	ProblemID int64 `json:"problemId" binding:"required"`
}

// CreateBattleResponse carries the room the players should join.
type CreateBattleResponse struct {
	BattleID  string `json:"battleId"`
	ProblemID int64  `json:"problemId"`
	Status    string `json:"status"`
}

// BattleResponse is the durable record of one battle.
type BattleResponse struct {
	BattleID  string `json:"battleId"`
	ProblemID int64  `json:"problemId"`
	State     string `json:"state"`
	WinnerID  string `json:"winnerId,omitempty"`
	EndReason string `json:"endReason,omitempty"`
	CreatedAt string `json:"createdAt"`
	EndedAt   string `json:"endedAt,omitempty"`
}

// Create provisions a new battle room.
func (h *BattleController) Create(c *gin.Context) {
	var req CreateBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	view, err := h.coordinator.CreateBattle(c.Request.Context(), req.ProblemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, CreateBattleResponse{
		BattleID:  view.ID,
		ProblemID: view.ProblemID,
		Status:    string(view.Status),
	})
}

// Get returns the record of one battle.
func (h *BattleController) Get(c *gin.Context) {
	battleID := c.Param("id")
	if battleID == "" {
		response.BadRequest(c, "Invalid battle id")
		return
	}

	battle, err := h.coordinator.GetBattle(c.Request.Context(), battleID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := BattleResponse{
		BattleID:  battle.BattleID,
		ProblemID: battle.ProblemID,
		State:     battleStateName(battle.State),
		WinnerID:  battle.WinnerID,
		EndReason: battle.EndReason,
		CreatedAt: battle.CreatedAt.UTC().Format(time.RFC3339),
	}
	if battle.State == repository.BattleStateEnded {
		resp.EndedAt = battle.EndedAt.UTC().Format(time.RFC3339)
	}
	response.Success(c, resp)
}

func battleStateName(state int32) string {
	if state == repository.BattleStateEnded {
		return "ended"
	}
	return "active"
}
