package service

import (
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"sync"
	"time"
)

// SessionState 会话快照
type SessionState struct {
	ID           string              `json:"id"`
	UserID       uint                `json:"userId"`
	Mode         model.SessionMode   `json:"mode"`
	Status       model.SessionStatus `json:"status"`
	QuestionIDs  []string            `json:"questionIds"`
	Index        int                 `json:"index"`
	Drafts       map[string]string   `json:"drafts"`
	Submitted    map[string]bool     `json:"submitted"`
	StartedAt    time.Time           `json:"startedAt"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	FinishedAt   *time.Time          `json:"finishedAt,omitempty"`
	FinishReason model.FinishReason  `json:"finishReason,omitempty"`
	Empty        bool                `json:"empty"`
}

func (s SessionState) clone() SessionState {
	c := s
	c.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	c.Drafts = make(map[string]string, len(s.Drafts))
	for k, v := range s.Drafts {
		c.Drafts[k] = v
	}
	c.Submitted = make(map[string]bool, len(s.Submitted))
	for k, v := range s.Submitted {
		c.Submitted[k] = v
	}
	return c
}

// Session 单个会话的状态机：idle -> running -> finished
type Session struct {
	mu sync.Mutex

	id     string
	userID uint
	mode   model.SessionMode
	status model.SessionStatus
	empty  bool

	questions []model.Question
	index     int
	drafts    map[string]string
	submitted map[string]bool
	attempts  map[string]*model.AttemptRecord

	startedAt    time.Time
	deadline     *time.Time
	finishedAt   *time.Time
	finishReason model.FinishReason

	// 单题计时，每次切题重置
	questionOpenedAt time.Time

	tags  *TagCache
	timer *time.Timer
}

func newSession(id string, userID uint, mode model.SessionMode, questions []model.Question, tags *TagCache) *Session {
	return &Session{
		id:        id,
		userID:    userID,
		mode:      mode,
		status:    model.SessionIdle,
		questions: questions,
		drafts:    make(map[string]string),
		submitted: make(map[string]bool),
		attempts:  make(map[string]*model.AttemptRecord),
		tags:      tags,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() uint { return s.userID }

// begin 没有题目时保持 idle 并标记为空会话
func (s *Session) begin(now time.Time, deadline *time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionIdle {
		return false
	}
	if len(s.questions) == 0 {
		s.empty = true
		return false
	}
	s.status = model.SessionRunning
	s.startedAt = now
	s.deadline = deadline
	s.questionOpenedAt = now
	return true
}

func (s *Session) armTimer(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionRunning {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, fire)
}

// finish 只有第一次调用返回 true，结算副作用由调用方据此只执行一次
func (s *Session) finish(reason model.FinishReason, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(reason, now)
}

func (s *Session) finishLocked(reason model.FinishReason, now time.Time) bool {
	if s.status != model.SessionRunning {
		return false
	}
	s.status = model.SessionFinished
	s.finishedAt = &now
	s.finishReason = reason
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

// Tick 超过截止时间时强制结束，返回本次是否触发了结束
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionRunning || s.deadline == nil || now.Before(*s.deadline) {
		return false
	}
	return s.finishLocked(model.FinishDeadline, now)
}

func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// move 切题并重置单题计时
func (s *Session) move(index int, now time.Time) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionRunning {
		return nil, s.inactiveErr()
	}
	if index < 0 || index >= len(s.questions) {
		return nil, util.ErrIndexOutOfRange
	}
	s.index = index
	s.questionOpenedAt = now
	q := s.questions[index]
	return &q, nil
}

func (s *Session) step(delta int, now time.Time) (*model.Question, error) {
	s.mu.Lock()
	target := s.index + delta
	s.mu.Unlock()
	return s.move(target, now)
}

// current 当前题目及单题已用时间
func (s *Session) current(now time.Time) (*model.Question, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionRunning {
		return nil, 0, s.inactiveErr()
	}
	q := s.questions[s.index]
	return &q, now.Sub(s.questionOpenedAt), nil
}

func (s *Session) inactiveErr() error {
	if s.status == model.SessionFinished {
		return util.ErrSessionFinished
	}
	return util.ErrSessionNotActive
}

func (s *Session) saveDraft(questionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionRunning {
		return s.inactiveErr()
	}
	s.drafts[questionID] = text
	return nil
}

func (s *Session) markSubmitted(questionID, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted[questionID] = true
	s.drafts[questionID] = answer
}

func (s *Session) attempt(questionID string) *model.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[questionID]
}

func (s *Session) setAttempt(questionID string, rec *model.AttemptRecord) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[questionID] = rec
}

// releaseTags 会话结束时丢弃标签缓存
func (s *Session) releaseTags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = nil
}

func (s *Session) tagCache() *TagCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags
}

func (s *Session) questionList() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.questions...)
}

func (s *Session) times() (time.Time, *time.Time, *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt, s.deadline, s.finishedAt
}

// Snapshot 导出可持久化的状态
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	state := SessionState{
		ID:           s.id,
		UserID:       s.userID,
		Mode:         s.mode,
		Status:       s.status,
		QuestionIDs:  ids,
		Index:        s.index,
		StartedAt:    s.startedAt,
		Deadline:     s.deadline,
		FinishedAt:   s.finishedAt,
		FinishReason: s.finishReason,
		Empty:        s.empty,
		Drafts:       s.drafts,
		Submitted:    s.submitted,
	}
	return state.clone()
}

// restore 按快照恢复，questions 已按快照顺序重新加载
func restoreSession(state SessionState, questions []model.Question, tags *TagCache, now time.Time) *Session {
	s := newSession(state.ID, state.UserID, state.Mode, questions, tags)
	s.status = state.Status
	s.empty = state.Empty
	s.startedAt = state.StartedAt
	s.deadline = state.Deadline
	s.finishedAt = state.FinishedAt
	s.finishReason = state.FinishReason
	s.questionOpenedAt = now
	for k, v := range state.Drafts {
		s.drafts[k] = v
	}
	for k, v := range state.Submitted {
		s.submitted[k] = v
	}
	if state.Index >= 0 && state.Index < len(questions) {
		s.index = state.Index
	}
	if s.status == model.SessionRunning && len(questions) == 0 {
		s.status = model.SessionIdle
		s.empty = true
	}
	return s
}
