package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"

	"go.uber.org/zap"
)

// Scope 练习范围：显式题目 id 优先，否则按技能标签
type Scope struct {
	QuestionIDs []string
	Skills      []string
}

// QuestionPool 题库适配层
type QuestionPool struct {
	store QuestionStore
}

func NewQuestionPool(store QuestionStore) *QuestionPool {
	return &QuestionPool{store: store}
}

// ForScope 显式 id 中缺失的题目被跳过，会话规模随之缩小
func (p *QuestionPool) ForScope(ctx context.Context, scope Scope) ([]model.Question, error) {
	if len(scope.QuestionIDs) > 0 {
		questions, err := p.store.FindByIDs(ctx, scope.QuestionIDs)
		if err != nil {
			return nil, err
		}
		if len(questions) < len(scope.QuestionIDs) {
			logger.Log.Warn("Some requested questions are missing",
				zap.Int("requested", len(scope.QuestionIDs)),
				zap.Int("found", len(questions)),
				zap.Error(util.ErrMissingQuestionData),
			)
		}
		return questions, nil
	}
	return p.store.FindBySkills(ctx, scope.Skills)
}

func (p *QuestionPool) ByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	return p.store.FindByIDs(ctx, ids)
}

func (p *QuestionPool) Candidates(ctx context.Context, problemNumber int) ([]model.Question, error) {
	return p.store.FindByProblemNumber(ctx, problemNumber)
}

func (p *QuestionPool) Fallback(ctx context.Context, problemNumber int) ([]model.Question, error) {
	return p.store.FindFallback(ctx, problemNumber)
}
