package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService 作答记录生命周期：none -> started -> finished
type AttemptService struct {
	store AttemptStore
	now   func() time.Time
}

func NewAttemptService(store AttemptStore) *AttemptService {
	return &AttemptService{store: store, now: time.Now}
}

// Start 复用 (user, question) 上最近一条未完成的作答；本会话已关闭过该题时返回那条记录，否则新建
// 存储失败只记录日志，返回内存中的记录，会话继续
func (s *AttemptService) Start(ctx context.Context, tags *TagCache, userID uint, sessionID string, q *model.Question) *model.AttemptRecord {
	latest, err := s.store.LatestByUserAndQuestion(ctx, userID, q.ID)
	if err != nil {
		logTransient("load latest attempt", err, zap.Uint("user_id", userID), zap.String("question_id", q.ID))
	} else if latest != nil && !latest.Finished {
		if latest.SessionID != sessionID {
			// 上一次会话遗留的未完成作答，迁移到当前会话并重新计时
			latest.SessionID = sessionID
			latest.StartedAt = s.now()
			if err := s.store.Update(ctx, latest); err != nil {
				logTransient("move attempt to session", err, zap.String("attempt_id", latest.ID))
			}
		}
		return latest
	} else if latest != nil && latest.SessionID == sessionID {
		return latest
	}

	done, err := s.store.FindFinishedInSession(ctx, userID, q.ID, sessionID)
	if err != nil {
		logTransient("check finished attempt", err, zap.Uint("user_id", userID), zap.String("question_id", q.ID))
	} else if done != nil {
		return done
	}

	rec := &model.AttemptRecord{
		UUIDBase:   model.UUIDBase{ID: model.GenerateUUID()},
		UserID:     userID,
		QuestionID: q.ID,
		SessionID:  sessionID,
		StartedAt:  s.now(),
		SkillTags:  strings.Join(tags.Resolve(ctx, q), ","),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		logTransient("create attempt", err, zap.String("attempt_id", rec.ID), zap.String("question_id", q.ID))
	}
	return rec
}

// Finish 关闭作答；已关闭或同一会话已有关闭记录时为空操作，返回权威记录与是否写入
func (s *AttemptService) Finish(ctx context.Context, rec *model.AttemptRecord, correct bool, score *float64, responseTime time.Duration) (*model.AttemptRecord, bool) {
	if rec == nil {
		return nil, false
	}
	if rec.Finished {
		return rec, false
	}

	existing, err := s.store.FindFinishedInSession(ctx, rec.UserID, rec.QuestionID, rec.SessionID)
	if err != nil {
		logTransient("check finished attempt", err, zap.String("attempt_id", rec.ID))
	} else if existing != nil {
		if existing.ID != rec.ID {
			if err := s.store.Discard(ctx, rec.ID); err != nil {
				logTransient("discard redundant attempt", err, zap.String("attempt_id", rec.ID))
			}
		}
		return existing, false
	}

	rec.Finished = true
	rec.Correct = util.BoolPtr(correct)
	rec.Score = score
	rec.DurationMs = s.now().Sub(rec.StartedAt).Milliseconds()
	if responseTime > 0 {
		rec.ResponseTimeMs = responseTime.Milliseconds()
	}
	if err := s.store.Update(ctx, rec); err != nil {
		logTransient("finish attempt", err, zap.String("attempt_id", rec.ID))
	}
	return rec, true
}

// ForSession 会话内每道题的权威作答
func (s *AttemptService) ForSession(ctx context.Context, sessionID string) map[string]*model.AttemptRecord {
	rows, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		logTransient("list session attempts", err, zap.String("session_id", sessionID))
		return nil
	}
	return pickPerQuestion(rows)
}

// pickPerQuestion 每道题保留一条：已完成的优先，其次取最近开始的
func pickPerQuestion(rows []model.AttemptRecord) map[string]*model.AttemptRecord {
	out := make(map[string]*model.AttemptRecord, len(rows))
	for i := range rows {
		rec := &rows[i]
		prev, ok := out[rec.QuestionID]
		if !ok || (rec.Finished && !prev.Finished) || (rec.Finished == prev.Finished && rec.StartedAt.After(prev.StartedAt)) {
			out[rec.QuestionID] = rec
		}
	}
	return out
}

// Regrade 异步评分回写，覆盖正确性与分数，不改动用时
func (s *AttemptService) Regrade(ctx context.Context, attemptID string, correct bool, score *float64) error {
	rec, err := s.store.FindByID(ctx, attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrAttemptNotFound
	}
	if err != nil {
		return errors.Join(util.ErrTransientPersistence, err)
	}

	rec.Correct = util.BoolPtr(correct)
	rec.Score = score
	if err := s.store.Update(ctx, rec); err != nil {
		return errors.Join(util.ErrTransientPersistence, err)
	}
	return nil
}

func logTransient(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(errors.Join(util.ErrTransientPersistence, err)))
	logger.Log.Warn("Persistence failed, continuing", fields...)
}
