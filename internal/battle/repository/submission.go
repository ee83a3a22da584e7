package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"

	"codeverse/internal/common/db"
	"codeverse/internal/common/storage"
)

const submissionContentType = "application/gzip"

// Submission is one archived battle submission. The source itself lives in
// object storage; the row carries the key, the hash and the verdict.
type Submission struct {
	SubmissionID string
	BattleID     string
	UserID       string
	ProblemID    int64
	LanguageID   string
	SourceKey    string
	SourceHash   string
	Passed       bool
	CreatedAt    time.Time
}

// SubmissionRepository archives battle submissions.
type SubmissionRepository interface {
	Record(ctx context.Context, submission *Submission, sourceCode string) error
}

// ArchiveSubmissionRepository stores the gzipped source in object storage and
// the metadata row in MySQL.
type ArchiveSubmissionRepository struct {
	db     db.Database
	store  storage.ObjectStorage
	bucket string
}

// NewSubmissionRepository creates a submission archive repository.
func NewSubmissionRepository(database db.Database, store storage.ObjectStorage, bucket string) *ArchiveSubmissionRepository {
	return &ArchiveSubmissionRepository{
		db:     database,
		store:  store,
		bucket: bucket,
	}
}

// Record archives one submission. The object is written first; a metadata
// row pointing at a missing object would be a dangling reference.
func (r *ArchiveSubmissionRepository) Record(ctx context.Context, submission *Submission, sourceCode string) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.BattleID == "" {
		return errors.New("battleID is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}

	sum := sha256.Sum256([]byte(sourceCode))
	submission.SourceHash = hex.EncodeToString(sum[:])
	submission.SourceKey = fmt.Sprintf("battles/%s/%s.code.gz", submission.BattleID, submission.SubmissionID)

	compressed, err := gzipBytes([]byte(sourceCode))
	if err != nil {
		return fmt.Errorf("compress source: %w", err)
	}
	if err := r.store.PutObject(ctx, r.bucket, submission.SourceKey, bytes.NewReader(compressed), int64(len(compressed)), submissionContentType); err != nil {
		return fmt.Errorf("store source object: %w", err)
	}

	query := `
		INSERT INTO battle_submissions
		(submission_id, battle_id, user_id, problem_id, language_id, source_key, source_hash, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.BattleID,
		submission.UserID,
		submission.ProblemID,
		submission.LanguageID,
		submission.SourceKey,
		submission.SourceHash,
		submission.Passed,
	)
	if err != nil {
		_ = r.store.RemoveObject(ctx, r.bucket, submission.SourceKey)
		return err
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
