// Package repository persists battle data: problems, battle outcomes and the
// submission archive.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codeverse/internal/battle/model"
	"codeverse/internal/common/cache"
	"codeverse/internal/common/db"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemCacheKeyPrefix       = "battle:problem:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// ProblemRepository loads judge-ready problems.
type ProblemRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error)
}

// MySQLProblemRepository implements ProblemRepository with MySQL and a
// cache-aside Redis layer.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository with default TTLs.
func NewProblemRepository(database db.Database, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewProblemRepositoryWithTTL creates a problem repository with custom TTLs.
func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetByID loads a problem with its test cases.
func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*model.Problem](
			ctx,
			r.cache,
			problemCacheKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p *model.Problem) bool { return p == nil },
			marshalProblem,
			unmarshalProblem,
			func(ctx context.Context) (*model.Problem, error) {
				problem, err := r.getFromDB(ctx, nil, problemID)
				if err != nil {
					if errors.Is(err, ErrProblemNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return problem, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getFromDB(ctx, tx, problemID)
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	query := `
		SELECT problem_id, title, test_cases
		FROM battle_problems
		WHERE problem_id = ?
	`
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID)

	var problem model.Problem
	var testCasesJSON []byte
	if err := row.Scan(&problem.ID, &problem.Title, &testCasesJSON); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(testCasesJSON, &problem.TestCases); err != nil {
		return nil, err
	}
	return &problem, nil
}

func problemCacheKey(problemID int64) string {
	return problemCacheKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(p *model.Problem) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
