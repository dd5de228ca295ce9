package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.AttemptRecord) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) Update(ctx context.Context, attempt *model.AttemptRecord) error {
	return r.DB.WithContext(ctx).Save(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.AttemptRecord, error) {
	var a model.AttemptRecord
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestByUserAndQuestion 最近一次作答，不存在时返回 nil, nil
func (r *AttemptRepository) LatestByUserAndQuestion(ctx context.Context, userID uint, questionID string) (*model.AttemptRecord, error) {
	var a model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Order("started_at DESC, created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestByUserForQuestions 批量取每道题的最近一次作答
func (r *AttemptRepository) LatestByUserForQuestions(ctx context.Context, userID uint, questionIDs []string) (map[string]*model.AttemptRecord, error) {
	latest := make(map[string]*model.AttemptRecord, len(questionIDs))
	if len(questionIDs) == 0 {
		return latest, nil
	}
	var rows []model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND question_id IN ?", userID, questionIDs).
		Order("started_at ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		latest[rows[i].QuestionID] = &rows[i]
	}
	return latest, nil
}

// FindFinishedInSession 同一会话内已关闭的作答
func (r *AttemptRepository) FindFinishedInSession(ctx context.Context, userID uint, questionID, sessionID string) (*model.AttemptRecord, error) {
	var a model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND question_id = ? AND session_id = ? AND finished = ?", userID, questionID, sessionID, true).
		Order("started_at ASC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID string) ([]model.AttemptRecord, error) {
	var rows []model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at ASC").
		Find(&rows).Error
	return rows, err
}

// Discard 软删除多余的未关闭作答
func (r *AttemptRepository) Discard(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Delete(&model.AttemptRecord{}, "id = ?", id).Error
}
