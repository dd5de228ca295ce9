package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
)

// QuestionStore 题库只读接口
type QuestionStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]model.Question, error)
	FindBySkills(ctx context.Context, skills []string) ([]model.Question, error)
	FindByProblemNumber(ctx context.Context, problemNumber int) ([]model.Question, error)
	FindFallback(ctx context.Context, problemNumber int) ([]model.Question, error)
	FindSkillTags(ctx context.Context, questionID string) (string, error)
}

// AttemptStore 作答记录持久化
type AttemptStore interface {
	Create(ctx context.Context, attempt *model.AttemptRecord) error
	Update(ctx context.Context, attempt *model.AttemptRecord) error
	FindByID(ctx context.Context, id string) (*model.AttemptRecord, error)
	LatestByUserAndQuestion(ctx context.Context, userID uint, questionID string) (*model.AttemptRecord, error)
	LatestByUserForQuestions(ctx context.Context, userID uint, questionIDs []string) (map[string]*model.AttemptRecord, error)
	FindFinishedInSession(ctx context.Context, userID uint, questionID, sessionID string) (*model.AttemptRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.AttemptRecord, error)
	Discard(ctx context.Context, id string) error
}

// SubmissionStore 提交记录，只追加写入
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) error
	CreateAfter(ctx context.Context, s *model.Submission, after int) (bool, error)
	LatestForQuestion(ctx context.Context, sessionID, questionID string) (*model.Submission, error)
	LatestForSession(ctx context.Context, sessionID string) (map[string]*model.Submission, error)
}

// SessionRecordStore 会话头信息
type SessionRecordStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	Update(ctx context.Context, s *model.ExamSession) error
	FindByID(ctx context.Context, id string) (*model.ExamSession, error)
}

var (
	_ QuestionStore      = (*repository.QuestionRepository)(nil)
	_ AttemptStore       = (*repository.AttemptRepository)(nil)
	_ SubmissionStore    = (*repository.SubmissionRepository)(nil)
	_ SessionRecordStore = (*repository.SessionRepository)(nil)
)
