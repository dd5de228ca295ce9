package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"math"
	"time"

	"go.uber.org/zap"
)

// ReviewEntry 结束后的只读回顾条目，每次从提交记录重新计算
type ReviewEntry struct {
	Index             int                 `json:"index"`
	QuestionID        string              `json:"questionId"`
	ProblemNumber     int                 `json:"problemNumber"`
	Section           string              `json:"section"`
	Prompt            string              `json:"prompt"`
	ImageRef          string              `json:"imageRef,omitempty"`
	CanonicalAnswer   string              `json:"canonicalAnswer"`
	ReferenceSolution string              `json:"referenceSolution,omitempty"`
	Answer            string              `json:"answer,omitempty"`
	SolutionText      string              `json:"solutionText,omitempty"`
	SolutionImageRef  string              `json:"solutionImageRef,omitempty"`
	Attempted         bool                `json:"attempted"`
	Correct           bool                `json:"correct"`
	Score             *float64            `json:"score"`
	MaxScore          float64             `json:"maxScore"`
	GradingStatus     model.GradingStatus `json:"gradingStatus"`
	Ungraded          bool                `json:"ungraded"`
	Feedback          string              `json:"feedback,omitempty"`
	RawFeedback       string              `json:"rawFeedback,omitempty"`
	VerifyMethod      string              `json:"verifyMethod,omitempty"`
	DurationMs        int64               `json:"durationMs"`
	ResponseTimeMs    int64               `json:"responseTimeMs"`
}

// SectionScore 分区统计
type SectionScore struct {
	Name       string  `json:"name"`
	Total      int     `json:"total"`
	Attempted  int     `json:"attempted"`
	Correct    int     `json:"correct"`
	Pending    int     `json:"pending"`
	Percentage float64 `json:"percentage"`
	Points     float64 `json:"points"`
	MaxPoints  float64 `json:"maxPoints"`
}

func (s *SectionScore) add(e ReviewEntry, points float64) {
	s.Total++
	s.MaxPoints += e.MaxScore
	if e.Attempted {
		s.Attempted++
	}
	if e.Correct {
		s.Correct++
	}
	if e.GradingStatus == model.GradingPending {
		s.Pending++
	}
	s.Points += points
}

func (s *SectionScore) finalize() {
	if s.Total > 0 {
		s.Percentage = math.Round(float64(s.Correct)/float64(s.Total)*10000) / 100
	}
}

// Report 会话成绩与回顾列表
type Report struct {
	SessionID   string         `json:"sessionId"`
	Sections    []SectionScore `json:"sections"`
	Total       SectionScore   `json:"total"`
	ElapsedMs   int64          `json:"elapsedMs"`
	Entries     []ReviewEntry  `json:"entries"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ReviewPage 回顾翻页
type ReviewPage struct {
	Entry   ReviewEntry `json:"entry"`
	Index   int         `json:"index"`
	Count   int         `json:"count"`
	HasPrev bool        `json:"hasPrev"`
	HasNext bool        `json:"hasNext"`
}

// Page 按下标跳转，越界返回 ErrIndexOutOfRange
func (r *Report) Page(index int) (*ReviewPage, error) {
	if index < 0 || index >= len(r.Entries) {
		return nil, util.ErrIndexOutOfRange
	}
	return &ReviewPage{
		Entry:   r.Entries[index],
		Index:   index,
		Count:   len(r.Entries),
		HasPrev: index > 0,
		HasNext: index < len(r.Entries)-1,
	}, nil
}

// settleWaiter 结算前等待后台评分
type settleWaiter interface {
	WaitForSession(sessionID string, timeout time.Duration) bool
}

// ScoreInput 结算输入
type ScoreInput struct {
	SessionID  string
	Questions  []model.Question
	StartedAt  time.Time
	FinishedAt *time.Time
	Settle     bool
}

// ScoringService 成绩汇总，可重复执行
type ScoringService struct {
	submissions SubmissionStore
	attempts    AttemptStore
	policy      *GradingPolicy
	waiter      settleWaiter
	now         func() time.Time
}

func NewScoringService(submissions SubmissionStore, attempts AttemptStore, policy *GradingPolicy, waiter settleWaiter) *ScoringService {
	return &ScoringService{
		submissions: submissions,
		attempts:    attempts,
		policy:      policy,
		waiter:      waiter,
		now:         time.Now,
	}
}

// Build 读取失败的数据按未作答处理
func (s *ScoringService) Build(ctx context.Context, in ScoreInput) *Report {
	if in.Settle && s.waiter != nil {
		if !s.waiter.WaitForSession(in.SessionID, s.policy.SettleDelay()) {
			logTransient("settle background grading", context.DeadlineExceeded, zap.String("session_id", in.SessionID))
		}
	}

	subs, err := s.submissions.LatestForSession(ctx, in.SessionID)
	if err != nil {
		logTransient("load submissions", err, zap.String("session_id", in.SessionID))
		subs = map[string]*model.Submission{}
	}
	attempts := s.sessionAttempts(ctx, in.SessionID)

	report := &Report{SessionID: in.SessionID, GeneratedAt: s.now()}
	sectionIdx := make(map[string]int)

	for i := range in.Questions {
		q := &in.Questions[i]
		rule := s.policy.SectionFor(q.ProblemNumber)
		entry, points := buildEntry(i, q, rule, subs[q.ID], attempts[q.ID])

		idx, ok := sectionIdx[rule.Name]
		if !ok {
			idx = len(report.Sections)
			sectionIdx[rule.Name] = idx
			report.Sections = append(report.Sections, SectionScore{Name: rule.Name})
		}
		report.Sections[idx].add(entry, points)
		report.Total.add(entry, points)
		report.Entries = append(report.Entries, entry)
	}

	for i := range report.Sections {
		report.Sections[i].finalize()
	}
	report.Total.Name = "total"
	report.Total.finalize()

	end := s.now()
	if in.FinishedAt != nil {
		end = *in.FinishedAt
	}
	if !in.StartedAt.IsZero() && end.After(in.StartedAt) {
		report.ElapsedMs = end.Sub(in.StartedAt).Milliseconds()
	}
	return report
}

func (s *ScoringService) sessionAttempts(ctx context.Context, sessionID string) map[string]*model.AttemptRecord {
	rows, err := s.attempts.ListBySession(ctx, sessionID)
	if err != nil {
		logTransient("load session attempts", err, zap.String("session_id", sessionID))
		return make(map[string]*model.AttemptRecord)
	}
	return pickPerQuestion(rows)
}

// buildEntry 解答题按当前阈值重新判定；pending 沿用乐观值，failed 记为未评分且不计分
func buildEntry(i int, q *model.Question, rule SectionRule, sub *model.Submission, rec *model.AttemptRecord) (ReviewEntry, float64) {
	entry := ReviewEntry{
		Index:             i,
		QuestionID:        q.ID,
		ProblemNumber:     q.ProblemNumber,
		Section:           rule.Name,
		Prompt:            q.Prompt,
		ImageRef:          q.ImageRef,
		CanonicalAnswer:   q.CanonicalAnswer,
		ReferenceSolution: q.Solution,
		MaxScore:          rule.maxPoints(),
		GradingStatus:     model.GradingNone,
	}
	if rec != nil {
		entry.DurationMs = rec.DurationMs
		entry.ResponseTimeMs = rec.ResponseTimeMs
	}
	if sub == nil {
		return entry, 0
	}

	entry.Attempted = true
	entry.Answer = sub.Answer
	entry.SolutionText = sub.SolutionText
	entry.SolutionImageRef = sub.SolutionImageRef
	entry.Score = sub.Score
	entry.GradingStatus = sub.GradingStatus
	entry.Feedback = sub.Feedback
	entry.RawFeedback = sub.RawFeedback
	entry.VerifyMethod = sub.VerifyMethod

	var points float64
	switch {
	case sub.GradingStatus == model.GradingFailed:
		entry.Ungraded = true
		entry.Correct = false
		entry.Score = nil
	case rule.FreeResponse && sub.GradingStatus == model.GradingComplete && sub.Score != nil:
		entry.Correct = rule.Passed(*sub.Score)
		points = *sub.Score
	default:
		entry.Correct = sub.Correct != nil && *sub.Correct
		if sub.Score != nil {
			points = *sub.Score
		} else if entry.Correct {
			points = rule.maxPoints()
		}
	}
	return entry, points
}
