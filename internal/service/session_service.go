package service

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/events"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionOptions 会话相关配置
type SessionOptions struct {
	PracticeLimit int
	ExamDuration  time.Duration
	// 已结束会话在内存中保留的时长，之后只能从快照恢复
	RetainFinished time.Duration
}

// SessionDeps 会话服务依赖
type SessionDeps struct {
	Questions QuestionStore
	Pool      *QuestionPool
	Mastery   *MasteryTracker
	Selector  *PrioritySelector
	Blueprint *BlueprintSelector
	Attempts  *AttemptService
	Grading   *GradingService
	Scoring   *ScoringService
	Records   SessionRecordStore
	States    SessionStateStore
	Publisher events.Publisher
	Options   SessionOptions
}

// StartRequest 开始会话；练习模式按 QuestionIDs 或 Skills 取题，考试模式按固定结构抽题
type StartRequest struct {
	UserID          uint
	Mode            model.SessionMode
	QuestionIDs     []string
	Skills          []string
	Limit           int
	DurationSeconds int
}

// SubmitRequest 当前题目的作答
type SubmitRequest struct {
	Answer           string
	SolutionText     string
	SolutionImageRef string
}

// SubmitResult 提交结果，Pending 表示解答题仍在后台评分
type SubmitResult struct {
	QuestionID    string              `json:"questionId"`
	Section       string              `json:"section"`
	Correct       bool                `json:"correct"`
	Score         *float64            `json:"score"`
	Method        VerifyMethod        `json:"method"`
	GradingStatus model.GradingStatus `json:"gradingStatus"`
	Pending       bool                `json:"pending"`
}

// SessionView 返回给前端的会话状态
type SessionView struct {
	SessionState
	Current        *model.Question `json:"current,omitempty"`
	Draft          string          `json:"draft,omitempty"`
	RemainingMs    *int64          `json:"remainingMs,omitempty"`
	PendingGrading int             `json:"pendingGrading"`
}

type SessionService struct {
	deps SessionDeps
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[uint]string
}

func NewSessionService(deps SessionDeps) *SessionService {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.States == nil {
		deps.States = NewMemoryStateStore()
	}
	return &SessionService{
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
		byUser:   make(map[uint]string),
	}
}

// Start 取题、排序并开始会话；一道题都没有时返回空会话，状态保持 idle
func (s *SessionService) Start(ctx context.Context, req StartRequest) (*SessionView, error) {
	now := s.now()
	id := model.GenerateUUID()
	tags := NewTagCache(s.deps.Questions)

	var questions []model.Question
	var duration time.Duration
	switch req.Mode {
	case model.ModeExam:
		questions = s.deps.Blueprint.Select(ctx)
		duration = s.deps.Options.ExamDuration
	default:
		req.Mode = model.ModePractice
		candidates, err := s.deps.Pool.ForScope(ctx, Scope{QuestionIDs: req.QuestionIDs, Skills: req.Skills})
		if err != nil {
			logTransient("load question pool", err, zap.Uint("user_id", req.UserID))
		}
		ids := make([]string, len(candidates))
		for i, q := range candidates {
			ids[i] = q.ID
		}
		limit := req.Limit
		if limit <= 0 {
			limit = s.deps.Options.PracticeLimit
		}
		statuses := s.deps.Mastery.Classify(ctx, req.UserID, ids)
		questions = s.deps.Selector.Order(candidates, statuses, limit)
	}
	if req.DurationSeconds > 0 {
		duration = time.Duration(req.DurationSeconds) * time.Second
	}

	var deadline *time.Time
	if duration > 0 {
		d := now.Add(duration)
		deadline = &d
	}

	sess := newSession(id, req.UserID, req.Mode, questions, tags)
	if !sess.begin(now, deadline) {
		logger.Log.Warn("Session has no questions",
			zap.String("session_id", id),
			zap.Uint("user_id", req.UserID),
			zap.String("mode", string(req.Mode)),
			zap.Error(util.ErrNoQuestions),
		)
		sess.releaseTags()
		s.register(sess)
		s.saveRecord(ctx, sess)
		s.persist(ctx, sess)
		return s.view(sess), nil
	}

	s.supersede(req.UserID)
	s.register(sess)
	s.saveRecord(ctx, sess)
	monitoring.ActiveSessions.Inc()
	if deadline != nil {
		sess.armTimer(deadline.Sub(now), func() { s.expire(id) })
	}
	s.openCurrent(ctx, sess)
	s.persist(ctx, sess)

	logger.Log.Info("Session started",
		zap.String("session_id", id),
		zap.Uint("user_id", req.UserID),
		zap.String("mode", string(req.Mode)),
		zap.Int("questions", len(questions)),
	)
	return s.view(sess), nil
}

func (s *SessionService) State(ctx context.Context, id string, userID uint) (*SessionView, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	return s.view(sess), nil
}

func (s *SessionService) Next(ctx context.Context, id string, userID uint) (*SessionView, error) {
	return s.navigate(ctx, id, userID, func(sess *Session, now time.Time) error {
		_, err := sess.step(1, now)
		return err
	})
}

func (s *SessionService) Prev(ctx context.Context, id string, userID uint) (*SessionView, error) {
	return s.navigate(ctx, id, userID, func(sess *Session, now time.Time) error {
		_, err := sess.step(-1, now)
		return err
	})
}

func (s *SessionService) Jump(ctx context.Context, id string, userID uint, index int) (*SessionView, error) {
	return s.navigate(ctx, id, userID, func(sess *Session, now time.Time) error {
		_, err := sess.move(index, now)
		return err
	})
}

func (s *SessionService) navigate(ctx context.Context, id string, userID uint, move func(*Session, time.Time) error) (*SessionView, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	if err := move(sess, s.now()); err != nil {
		return nil, err
	}
	s.openCurrent(ctx, sess)
	s.persist(ctx, sess)
	return s.view(sess), nil
}

// SaveDraft 缓存当前题目的输入，前后翻页时保留
func (s *SessionService) SaveDraft(ctx context.Context, id string, userID uint, text string) (*SessionView, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	q, _, err := sess.current(s.now())
	if err != nil {
		return nil, err
	}
	if err := sess.saveDraft(q.ID, text); err != nil {
		return nil, err
	}
	s.persist(ctx, sess)
	return s.view(sess), nil
}

// Submit 提交当前题目；允许重复提交，以最新一次写入为准
func (s *SessionService) Submit(ctx context.Context, id string, userID uint, req SubmitRequest) (*SubmitResult, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)

	q, elapsed, err := sess.current(s.now())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Answer) == "" && strings.TrimSpace(req.SolutionText) == "" && req.SolutionImageRef == "" {
		return nil, util.ErrEmptyAnswer
	}

	rec := sess.attempt(q.ID)
	if rec == nil {
		rec = s.deps.Attempts.Start(ctx, sess.tagCache(), userID, id, q)
		sess.setAttempt(q.ID, rec)
	}

	out := s.deps.Grading.Submit(ctx, SubmitInput{
		UserID:           userID,
		SessionID:        id,
		Question:         q,
		Attempt:          rec,
		Answer:           strings.TrimSpace(req.Answer),
		SolutionText:     strings.TrimSpace(req.SolutionText),
		SolutionImageRef: req.SolutionImageRef,
		ResponseTime:     elapsed,
	})
	sess.setAttempt(q.ID, out.Attempt)
	sess.markSubmitted(q.ID, req.Answer)
	s.persist(ctx, sess)

	return &SubmitResult{
		QuestionID:    q.ID,
		Section:       out.Section,
		Correct:       out.Verdict.Correct,
		Score:         out.Submission.Score,
		Method:        out.Verdict.Method,
		GradingStatus: out.Submission.GradingStatus,
		Pending:       out.Pending,
	}, nil
}

// Finish 手动结束；与截止时间触发的结束互斥，结算副作用只执行一次
func (s *SessionService) Finish(ctx context.Context, id string, userID uint) (*Report, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	if sess.finish(model.FinishManual, s.now()) {
		return s.complete(ctx, sess), nil
	}
	if sess.Status() != model.SessionFinished {
		return nil, util.ErrSessionNotActive
	}
	return s.build(ctx, sess, true), nil
}

// Report 任意时刻重新计算成绩，已结束的会话会先等待后台评分
func (s *SessionService) Report(ctx context.Context, id string, userID uint) (*Report, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	return s.build(ctx, sess, sess.Status() == model.SessionFinished), nil
}

// Review 结束后的只读回顾
func (s *SessionService) Review(ctx context.Context, id string, userID uint, index int) (*ReviewPage, error) {
	sess, err := s.get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.checkDeadline(sess)
	if sess.Status() != model.SessionFinished {
		return nil, util.ErrSessionNotActive
	}
	return s.build(ctx, sess, false).Page(index)
}

// Tick 后台巡检：强制结束已超时的会话，清理结束较久的内存会话，返回本次强制结束的数量
func (s *SessionService) Tick(now time.Time) int {
	s.mu.RLock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	forced := 0
	for _, sess := range live {
		if sess.Tick(now) {
			forced++
			s.complete(context.Background(), sess)
			continue
		}
		_, _, finishedAt := sess.times()
		retain := s.deps.Options.RetainFinished
		if finishedAt != nil && retain > 0 && now.Sub(*finishedAt) > retain {
			s.evict(sess)
		}
	}
	return forced
}

// Resume 进程启动时按会话记录恢复进行中的会话并重新挂上截止计时，返回恢复的数量
func (s *SessionService) Resume(ctx context.Context, ids []string) int {
	restored := 0
	for _, id := range ids {
		s.mu.RLock()
		_, live := s.sessions[id]
		s.mu.RUnlock()
		if live {
			continue
		}
		if _, err := s.rehydrate(ctx, id); err != nil {
			logger.Log.Warn("Failed to resume session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		restored++
	}
	return restored
}

func (s *SessionService) expire(id string) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess == nil {
		return
	}
	if sess.Tick(s.now()) {
		s.complete(context.Background(), sess)
	}
}

func (s *SessionService) checkDeadline(sess *Session) {
	if sess.Tick(s.now()) {
		s.complete(context.Background(), sess)
	}
}

// complete 结算副作用，只会在 finish/Tick 返回 true 之后调用
func (s *SessionService) complete(ctx context.Context, sess *Session) *Report {
	monitoring.ActiveSessions.Dec()
	sess.releaseTags()
	s.persist(ctx, sess)
	s.saveRecord(ctx, sess)

	report := s.build(ctx, sess, true)

	state := sess.Snapshot()
	monitoring.SessionsFinished.WithLabelValues(string(state.Mode), string(state.FinishReason)).Inc()
	if err := s.deps.Publisher.Publish(util.EventSessionFinished, map[string]interface{}{
		"sessionId": state.ID,
		"userId":    state.UserID,
		"mode":      state.Mode,
		"reason":    state.FinishReason,
		"total":     report.Total,
		"sections":  report.Sections,
		"elapsedMs": report.ElapsedMs,
	}); err != nil {
		logger.Log.Warn("Failed to publish event", zap.String("type", util.EventSessionFinished), zap.Error(err))
	}

	logger.Log.Info("Session finished",
		zap.String("session_id", state.ID),
		zap.String("reason", string(state.FinishReason)),
		zap.Int("correct", report.Total.Correct),
		zap.Int("total", report.Total.Total),
	)
	return report
}

func (s *SessionService) build(ctx context.Context, sess *Session, settle bool) *Report {
	started, _, finished := sess.times()
	return s.deps.Scoring.Build(ctx, ScoreInput{
		SessionID:  sess.ID(),
		Questions:  sess.questionList(),
		StartedAt:  started,
		FinishedAt: finished,
		Settle:     settle,
	})
}

// openCurrent 为当前题目开启作答；本会话已持有记录时不再重复开启
func (s *SessionService) openCurrent(ctx context.Context, sess *Session) {
	q, _, err := sess.current(s.now())
	if err != nil {
		return
	}
	if sess.attempt(q.ID) != nil {
		return
	}
	rec := s.deps.Attempts.Start(ctx, sess.tagCache(), sess.UserID(), sess.ID(), q)
	sess.setAttempt(q.ID, rec)
}

// supersede 同一用户开始新会话时，旧的进行中会话在后台结算
func (s *SessionService) supersede(userID uint) {
	s.mu.RLock()
	prevID, ok := s.byUser[userID]
	prev := s.sessions[prevID]
	s.mu.RUnlock()
	if !ok || prev == nil {
		return
	}
	if prev.finish(model.FinishManual, s.now()) {
		logger.Log.Info("Previous session superseded", zap.String("session_id", prevID), zap.Uint("user_id", userID))
		go s.complete(context.Background(), prev)
	}
}

// register 只有进行中的会话占用 byUser，空会话不能遮住用户正在进行的会话
func (s *SessionService) register(sess *Session) {
	running := sess.Status() == model.SessionRunning
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	if running {
		s.byUser[sess.UserID()] = sess.ID()
	}
}

func (s *SessionService) evict(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID())
	if s.byUser[sess.UserID()] == sess.ID() {
		delete(s.byUser, sess.UserID())
	}
}

// get 内存中没有时从快照恢复
func (s *SessionService) get(ctx context.Context, id string, userID uint) (*Session, error) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()

	if sess == nil {
		var err error
		sess, err = s.rehydrate(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	if sess.UserID() != userID {
		return nil, util.ErrPermissionDenied
	}
	return sess, nil
}

func (s *SessionService) rehydrate(ctx context.Context, id string) (*Session, error) {
	state, err := s.deps.States.Load(ctx, id)
	if err != nil {
		logTransient("load session snapshot", err, zap.String("session_id", id))
		return nil, util.ErrSessionNotFound
	}
	if state == nil {
		return nil, util.ErrSessionNotFound
	}

	questions, err := s.deps.Pool.ByIDs(ctx, state.QuestionIDs)
	if err != nil {
		logTransient("reload session questions", err, zap.String("session_id", id))
	}

	now := s.now()
	var tags *TagCache
	if state.Status == model.SessionRunning {
		tags = NewTagCache(s.deps.Questions)
	}
	sess := restoreSession(*state, questions, tags, now)
	running := sess.Status() == model.SessionRunning

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[id] = sess
	if running {
		s.byUser[sess.UserID()] = id
	}
	s.mu.Unlock()

	logger.Log.Info("Session restored from snapshot", zap.String("session_id", id), zap.String("status", string(state.Status)))

	if sess.Status() != model.SessionRunning {
		return sess, nil
	}
	monitoring.ActiveSessions.Inc()
	if sess.Tick(now) {
		s.complete(ctx, sess)
		return sess, nil
	}
	if state.Deadline != nil {
		sess.armTimer(state.Deadline.Sub(now), func() { s.expire(id) })
	}
	// 已作答的题目沿用原记录，回看时不再新开作答
	for qid, rec := range s.deps.Attempts.ForSession(ctx, id) {
		sess.setAttempt(qid, rec)
	}
	s.openCurrent(ctx, sess)
	return sess, nil
}

func (s *SessionService) persist(ctx context.Context, sess *Session) {
	if err := s.deps.States.Save(ctx, sess.Snapshot()); err != nil {
		logTransient("save session snapshot", err, zap.String("session_id", sess.ID()))
	}
}

// saveRecord 写入会话头信息
func (s *SessionService) saveRecord(ctx context.Context, sess *Session) {
	if s.deps.Records == nil {
		return
	}
	state := sess.Snapshot()
	ids, _ := json.Marshal(state.QuestionIDs)

	rec, err := s.deps.Records.FindByID(ctx, state.ID)
	if err != nil || rec == nil {
		rec = &model.ExamSession{UUIDBase: model.UUIDBase{ID: state.ID}}
		rec.UserID = state.UserID
		rec.Mode = state.Mode
		rec.QuestionIDs = string(ids)
		rec.StartedAt = state.StartedAt
		rec.Deadline = state.Deadline
		rec.Status = state.Status
		rec.FinishedAt = state.FinishedAt
		rec.FinishReason = state.FinishReason
		if err := s.deps.Records.Create(ctx, rec); err != nil {
			logTransient("create session record", err, zap.String("session_id", state.ID))
		}
		return
	}

	rec.Status = state.Status
	rec.FinishedAt = state.FinishedAt
	rec.FinishReason = state.FinishReason
	if err := s.deps.Records.Update(ctx, rec); err != nil {
		logTransient("update session record", err, zap.String("session_id", state.ID))
	}
}

func (s *SessionService) view(sess *Session) *SessionView {
	now := s.now()
	state := sess.Snapshot()
	v := &SessionView{SessionState: state}
	if state.Status == model.SessionRunning && state.Index < len(state.QuestionIDs) {
		if q, _, err := sess.current(now); err == nil {
			v.Current = q
			v.Draft = state.Drafts[q.ID]
		}
	}
	if state.Deadline != nil && state.Status == model.SessionRunning {
		remaining := state.Deadline.Sub(now).Milliseconds()
		if remaining < 0 {
			remaining = 0
		}
		v.RemainingMs = &remaining
	}
	if s.deps.Grading != nil {
		v.PendingGrading = s.deps.Grading.Pending(state.ID)
	}
	return v
}
