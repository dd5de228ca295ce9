package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// MasteryStatus 按最近一次作答划分的状态，数值即排序优先级
type MasteryStatus int

const (
	StatusWrong      MasteryStatus = 1
	StatusUnfinished MasteryStatus = 2
	StatusUnseen     MasteryStatus = 3
	StatusCorrect    MasteryStatus = 4
)

func (s MasteryStatus) String() string {
	switch s {
	case StatusWrong:
		return "wrong"
	case StatusUnfinished:
		return "unfinished"
	case StatusCorrect:
		return "correct"
	default:
		return "unseen"
	}
}

// ClassifyAttempt 已完成但没有正确性（评分失败）按错题处理
func ClassifyAttempt(rec *model.AttemptRecord) MasteryStatus {
	switch {
	case rec == nil:
		return StatusUnseen
	case !rec.Finished:
		return StatusUnfinished
	case rec.Correct != nil && *rec.Correct:
		return StatusCorrect
	default:
		return StatusWrong
	}
}

// MasteryEntry 单题掌握情况
type MasteryEntry struct {
	QuestionID    string     `json:"questionId"`
	Status        string     `json:"status"`
	Priority      int        `json:"priority"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
}

type MasteryTracker struct {
	attempts AttemptStore
}

func NewMasteryTracker(attempts AttemptStore) *MasteryTracker {
	return &MasteryTracker{attempts: attempts}
}

// Classify 读取失败时全部按未做过处理，不阻断会话
func (t *MasteryTracker) Classify(ctx context.Context, userID uint, questionIDs []string) map[string]MasteryStatus {
	latest := t.latest(ctx, userID, questionIDs)
	statuses := make(map[string]MasteryStatus, len(questionIDs))
	for _, id := range questionIDs {
		statuses[id] = ClassifyAttempt(latest[id])
	}
	return statuses
}

func (t *MasteryTracker) Report(ctx context.Context, userID uint, questionIDs []string) []MasteryEntry {
	latest := t.latest(ctx, userID, questionIDs)
	entries := make([]MasteryEntry, 0, len(questionIDs))
	for _, id := range questionIDs {
		rec := latest[id]
		status := ClassifyAttempt(rec)
		entry := MasteryEntry{QuestionID: id, Status: status.String(), Priority: int(status)}
		if rec != nil {
			started := rec.StartedAt
			entry.LastAttemptAt = &started
		}
		entries = append(entries, entry)
	}
	return entries
}

func (t *MasteryTracker) latest(ctx context.Context, userID uint, questionIDs []string) map[string]*model.AttemptRecord {
	latest, err := t.attempts.LatestByUserForQuestions(ctx, userID, questionIDs)
	if err != nil {
		logTransient("load attempt history", err, zap.Uint("user_id", userID), zap.Int("questions", len(questionIDs)))
		return map[string]*model.AttemptRecord{}
	}
	logger.Log.Debug("Loaded attempt history", zap.Uint("user_id", userID), zap.Int("records", len(latest)))
	return latest
}
