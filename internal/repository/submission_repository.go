package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// Create 追加一行写入，Revision 在同一 (session, question) 内单调递增
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxRev, err := maxRevision(tx, s.SessionID, s.QuestionID)
		if err != nil {
			return err
		}
		return insertRevision(tx, s, maxRev+1)
	})
}

// CreateAfter 仅当最新修订仍为 after 时追加，返回是否写入
// 并发写入抢到同一修订号时由唯一索引拒绝，视为已被取代
func (r *SubmissionRepository) CreateAfter(ctx context.Context, s *model.Submission, after int) (bool, error) {
	written := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxRev, err := maxRevision(tx, s.SessionID, s.QuestionID)
		if err != nil {
			return err
		}
		if maxRev != after {
			return nil
		}
		if err := insertRevision(tx, s, after+1); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		if maxRev, cerr := maxRevision(r.DB.WithContext(ctx), s.SessionID, s.QuestionID); cerr == nil && maxRev > after {
			return false, nil
		}
		return false, err
	}
	return written, nil
}

func maxRevision(db *gorm.DB, sessionID, questionID string) (int, error) {
	var maxRev int
	err := db.Model(&model.Submission{}).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Select("COALESCE(MAX(revision), 0)").
		Scan(&maxRev).Error
	return maxRev, err
}

func insertRevision(tx *gorm.DB, s *model.Submission, rev int) error {
	s.Revision = rev
	if s.WrittenAt.IsZero() {
		s.WrittenAt = time.Now()
	}
	return tx.Create(s).Error
}

// LatestForQuestion 返回权威的一行，不存在时返回 nil, nil
func (r *SubmissionRepository) LatestForQuestion(ctx context.Context, sessionID, questionID string) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Order("written_at DESC, revision DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestForSession 每道题只保留最近写入的一行
func (r *SubmissionRepository) LatestForSession(ctx context.Context, sessionID string) (map[string]*model.Submission, error) {
	var rows []model.Submission
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*model.Submission, len(rows))
	for i := range rows {
		s := &rows[i]
		if s.NewerThan(latest[s.QuestionID]) {
			latest[s.QuestionID] = s
		}
	}
	return latest, nil
}
