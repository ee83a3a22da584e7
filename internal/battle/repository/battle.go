package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codeverse/internal/common/cache"
	"codeverse/internal/common/db"
)

// Battle states stored in MySQL.
const (
	BattleStateActive int32 = 0
	BattleStateEnded  int32 = 1
)

const (
	defaultBattleCacheTTL      = 10 * time.Minute
	defaultBattleCacheEmptyTTL = time.Minute
	battleCacheKeyPrefix       = "battle:record:"
)

var (
	ErrBattleNotFound = errors.New("battle not found")
	ErrBattleEnded    = errors.New("battle already ended")
)

// Battle is the durable record of one battle. The in-memory room registry
// is the live arbiter; this row is the record of what happened.
type Battle struct {
	BattleID  string
	ProblemID int64
	State     int32
	WinnerID  string
	EndReason string
	CreatedAt time.Time
	EndedAt   time.Time
}

// BattleRepository persists battle records.
type BattleRepository interface {
	Create(ctx context.Context, tx db.Transaction, battle *Battle) error
	GetByID(ctx context.Context, tx db.Transaction, battleID string) (*Battle, error)
	// MarkEnded records the terminal state. It reports ErrBattleEnded when
	// the row was already terminal, so a lost broadcast race never
	// overwrites the recorded winner.
	MarkEnded(ctx context.Context, tx db.Transaction, battleID, winnerID, reason string) error
}

// MySQLBattleRepository implements BattleRepository with MySQL and a
// cache-aside Redis layer.
type MySQLBattleRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewBattleRepository creates a battle repository with default TTLs.
func NewBattleRepository(database db.Database, cacheClient cache.Cache) BattleRepository {
	return &MySQLBattleRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultBattleCacheTTL,
		emptyTTL: defaultBattleCacheEmptyTTL,
	}
}

// Create inserts an active battle record.
func (r *MySQLBattleRepository) Create(ctx context.Context, tx db.Transaction, battle *Battle) error {
	if battle == nil {
		return errors.New("battle is nil")
	}
	if battle.BattleID == "" {
		return errors.New("battleID is required")
	}
	if battle.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	query := `
		INSERT INTO battles (battle_id, problem_id, state)
		VALUES (?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, battle.BattleID, battle.ProblemID, BattleStateActive)
	return err
}

// GetByID loads a battle record.
func (r *MySQLBattleRepository) GetByID(ctx context.Context, tx db.Transaction, battleID string) (*Battle, error) {
	if battleID == "" {
		return nil, errors.New("battleID is required")
	}
	if r.cache != nil && tx == nil {
		battle, err := cache.GetWithCached[*Battle](
			ctx,
			r.cache,
			battleCacheKey(battleID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(b *Battle) bool { return b == nil },
			marshalBattle,
			unmarshalBattle,
			func(ctx context.Context) (*Battle, error) {
				battle, err := r.getFromDB(ctx, nil, battleID)
				if err != nil {
					if errors.Is(err, ErrBattleNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return battle, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if battle == nil {
			return nil, ErrBattleNotFound
		}
		return battle, nil
	}
	return r.getFromDB(ctx, tx, battleID)
}

// MarkEnded transitions the row to the ended state at most once.
func (r *MySQLBattleRepository) MarkEnded(ctx context.Context, tx db.Transaction, battleID, winnerID, reason string) error {
	if battleID == "" {
		return errors.New("battleID is required")
	}
	query := `
		UPDATE battles
		SET state = ?, winner_id = ?, end_reason = ?, ended_at = NOW()
		WHERE battle_id = ? AND state = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, BattleStateEnded, winnerID, reason, battleID, BattleStateActive)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, battleCacheKey(battleID))
	}
	if affected == 0 {
		existing, getErr := r.getFromDB(ctx, tx, battleID)
		if getErr != nil {
			return getErr
		}
		if existing.State == BattleStateEnded {
			return ErrBattleEnded
		}
		return errors.New("battle state update had no effect")
	}
	return nil
}

func (r *MySQLBattleRepository) getFromDB(ctx context.Context, tx db.Transaction, battleID string) (*Battle, error) {
	query := `
		SELECT battle_id, problem_id, state, COALESCE(winner_id, ''), COALESCE(end_reason, ''), created_at, COALESCE(ended_at, created_at)
		FROM battles
		WHERE battle_id = ?
	`
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, battleID)

	var battle Battle
	if err := row.Scan(
		&battle.BattleID,
		&battle.ProblemID,
		&battle.State,
		&battle.WinnerID,
		&battle.EndReason,
		&battle.CreatedAt,
		&battle.EndedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	return &battle, nil
}

func battleCacheKey(battleID string) string {
	return battleCacheKeyPrefix + battleID
}

func marshalBattle(b *Battle) string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalBattle(data string) (*Battle, error) {
	var b Battle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, err
	}
	return &b, nil
}
