package repository

import (
	"context"
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) Update(ctx context.Context, s *model.ExamSession) error {
	return r.DB.WithContext(ctx).Save(s).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*model.ExamSession, error) {
	var s model.ExamSession
	if err := r.DB.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRunning 进程重启后用于恢复仍在进行中的会话
func (r *SessionRepository) ListRunning(ctx context.Context) ([]model.ExamSession, error) {
	var rows []model.ExamSession
	err := r.DB.WithContext(ctx).
		Where("status = ?", model.SessionRunning).
		Order("started_at ASC").
		Find(&rows).Error
	return rows, err
}
