package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/internal/worker"
	"exam_prep_backend/pkg/events"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SolutionGrader 主观题评分
type SolutionGrader interface {
	Grade(ctx context.Context, req GradeRequest) (*GradeResult, error)
}

// SubmitInput 一次作答提交
type SubmitInput struct {
	UserID           uint
	SessionID        string
	Question         *model.Question
	Attempt          *model.AttemptRecord
	Answer           string
	SolutionText     string
	SolutionImageRef string
	ResponseTime     time.Duration
}

// SubmitOutcome Pending 为 true 时结果仍是乐观值，等待后台评分覆盖
type SubmitOutcome struct {
	Submission *model.Submission
	Attempt    *model.AttemptRecord
	Verdict    Verdict
	Section    string
	Pending    bool
}

type gradeOutcome struct {
	SessionID  string
	QuestionID string
	Status     model.GradingStatus
	Superseded bool
	Elapsed    time.Duration
}

type inflight struct {
	wg sync.WaitGroup
	n  int
}

// GradingService 判题结果落库；解答题先写乐观结果，再由后台 worker 评分覆盖
type GradingService struct {
	pipeline    *VerificationPipeline
	grader      SolutionGrader
	submissions SubmissionStore
	attempts    *AttemptService
	policy      *GradingPolicy
	publisher   events.Publisher

	pool    *worker.Pool[gradeOutcome]
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*inflight
	all      sync.WaitGroup
	done     chan struct{}
}

func NewGradingService(
	pipeline *VerificationPipeline,
	grader SolutionGrader,
	submissions SubmissionStore,
	attempts *AttemptService,
	policy *GradingPolicy,
	publisher events.Publisher,
	cfg config.GradingConfig,
	timeout time.Duration,
) *GradingService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	g := &GradingService{
		pipeline:    pipeline,
		grader:      grader,
		submissions: submissions,
		attempts:    attempts,
		policy:      policy,
		publisher:   publisher,
		pool:        worker.NewPool[gradeOutcome](cfg.Workers, cfg.QueueSize),
		timeout:     timeout,
		now:         time.Now,
		sessions:    make(map[string]*inflight),
		done:        make(chan struct{}),
	}
	go g.collect()
	return g
}

// Submit 按题号所在分区选择即时判题或两阶段评分
func (g *GradingService) Submit(ctx context.Context, in SubmitInput) *SubmitOutcome {
	rule := g.policy.SectionFor(in.Question.ProblemNumber)
	if rule.FreeResponse {
		return g.submitFreeResponse(ctx, in, rule)
	}

	verdict := g.pipeline.Verify(ctx, CanonicalAnswer(in.Question), in.Answer)
	score := 0.0
	if verdict.Correct {
		score = rule.maxPoints()
	}

	sub := &model.Submission{
		SessionID:     in.SessionID,
		QuestionID:    in.Question.ID,
		UserID:        in.UserID,
		AttemptID:     attemptID(in.Attempt),
		Answer:        in.Answer,
		Correct:       util.BoolPtr(verdict.Correct),
		Score:         util.Float64Ptr(score),
		GradingStatus: model.GradingNone,
		VerifyMethod:  string(verdict.Method),
		WrittenAt:     g.now(),
	}
	if err := g.submissions.Create(ctx, sub); err != nil {
		logTransient("create submission", err, zap.String("session_id", in.SessionID), zap.String("question_id", in.Question.ID))
	}

	rec, _ := g.attempts.Finish(ctx, in.Attempt, verdict.Correct, util.Float64Ptr(score), in.ResponseTime)
	return &SubmitOutcome{Submission: sub, Attempt: rec, Verdict: verdict, Section: rule.Name}
}

// submitFreeResponse 阶段 A：写入 pending 的乐观结果并立即返回，阶段 B 交给后台
func (g *GradingService) submitFreeResponse(ctx context.Context, in SubmitInput, rule SectionRule) *SubmitOutcome {
	provisional := rule.ProvisionalScore
	sub := &model.Submission{
		SessionID:        in.SessionID,
		QuestionID:       in.Question.ID,
		UserID:           in.UserID,
		AttemptID:        attemptID(in.Attempt),
		Answer:           in.Answer,
		SolutionText:     in.SolutionText,
		SolutionImageRef: in.SolutionImageRef,
		Correct:          util.BoolPtr(true),
		Score:            util.Float64Ptr(provisional),
		GradingStatus:    model.GradingPending,
		VerifyMethod:     string(MethodDeferred),
		WrittenAt:        g.now(),
	}
	if err := g.submissions.Create(ctx, sub); err != nil {
		logTransient("create provisional submission", err, zap.String("session_id", in.SessionID), zap.String("question_id", in.Question.ID))
	}

	rec, _ := g.attempts.Finish(ctx, in.Attempt, true, util.Float64Ptr(provisional), in.ResponseTime)
	monitoring.VerificationTotal.WithLabelValues(string(MethodDeferred), "pending").Inc()

	q := *in.Question
	provisionalCopy := *sub
	g.dispatch(in.SessionID, func() gradeOutcome {
		return g.grade(&q, &provisionalCopy, rule)
	})

	return &SubmitOutcome{
		Submission: sub,
		Attempt:    rec,
		Verdict:    Verdict{Correct: true, Method: MethodDeferred},
		Section:    rule.Name,
		Pending:    true,
	}
}

// dispatch 队列满或已关闭时退化为独立 goroutine，任务一旦派发就不会被取消
func (g *GradingService) dispatch(sessionID string, job worker.Job[gradeOutcome]) {
	g.track(sessionID)
	wrapped := func() gradeOutcome {
		defer g.untrack(sessionID)
		return job()
	}

	ok, err := g.pool.TrySubmit(sessionID, wrapped)
	if err == nil && ok {
		return
	}
	if err != nil && !errors.Is(err, worker.ErrPoolClosed) {
		logger.Log.Warn("Grading pool rejected job", zap.Error(err))
	}
	go func() {
		g.observe(wrapped())
	}()
}

// grade 阶段 B：调用评分服务，追加一条新的提交记录
func (g *GradingService) grade(q *model.Question, provisional *model.Submission, rule SectionRule) gradeOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "grading.grade",
		attribute.String("session.id", provisional.SessionID),
		attribute.String("question.id", q.ID),
		attribute.Int("problem.number", q.ProblemNumber),
	)
	defer span.End()

	start := time.Now()
	out := gradeOutcome{SessionID: provisional.SessionID, QuestionID: q.ID}

	solution := provisional.SolutionText
	if solution == "" {
		solution = provisional.Answer
	}

	var result *GradeResult
	var err error
	if g.grader == nil {
		err = &GradeError{Reason: "no grader configured", Wrapped: util.ErrRemoteVerificationUnavailable}
	} else {
		result, err = g.grader.Grade(ctx, GradeRequest{
			ProblemNumber:     q.ProblemNumber,
			Prompt:            q.Prompt,
			ReferenceSolution: q.Solution,
			Solution:          solution,
			SolutionImageRef:  provisional.SolutionImageRef,
			MaxScore:          rule.MaxScore,
		})
	}
	out.Elapsed = time.Since(start)

	// 结果写入不受请求上下文影响
	writeCtx, writeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer writeCancel()

	rev := &model.Submission{
		SessionID:        provisional.SessionID,
		QuestionID:       provisional.QuestionID,
		UserID:           provisional.UserID,
		AttemptID:        provisional.AttemptID,
		Answer:           provisional.Answer,
		SolutionText:     provisional.SolutionText,
		SolutionImageRef: provisional.SolutionImageRef,
		VerifyMethod:     string(MethodDeferred),
		WrittenAt:        g.now(),
	}

	var correct bool
	if err != nil {
		span.RecordError(err)
		rev.GradingStatus = model.GradingFailed
		rev.RawFeedback = err.Error()
		var gerr *GradeError
		if errors.As(err, &gerr) && gerr.Raw != "" {
			rev.RawFeedback = gerr.Raw
		}
		logger.Log.Warn("Free-response grading failed",
			zap.String("session_id", provisional.SessionID),
			zap.String("question_id", q.ID),
			zap.Bool("malformed", errors.Is(err, util.ErrMalformedGradingResponse)),
			zap.Error(err),
		)
	} else {
		correct = rule.Passed(result.Score)
		rev.GradingStatus = model.GradingComplete
		rev.Score = util.Float64Ptr(result.Score)
		rev.Correct = util.BoolPtr(correct)
		rev.Feedback = result.Feedback
		rev.RawFeedback = result.Raw
	}
	out.Status = rev.GradingStatus

	if !g.writeGraded(writeCtx, provisional, rev) {
		out.Superseded = true
		out.Status = model.GradingPending
		logger.Log.Info("Grading result superseded by a newer submission",
			zap.String("session_id", provisional.SessionID),
			zap.String("question_id", q.ID),
		)
		return out
	}
	if rev.AttemptID != "" {
		if err := g.attempts.Regrade(writeCtx, rev.AttemptID, correct, rev.Score); err != nil {
			logger.Log.Warn("Failed to regrade attempt", zap.String("attempt_id", rev.AttemptID), zap.Error(err))
		}
	}

	if err := g.publisher.Publish(util.EventSubmissionGraded, map[string]interface{}{
		"sessionId":     rev.SessionID,
		"questionId":    rev.QuestionID,
		"userId":        rev.UserID,
		"gradingStatus": rev.GradingStatus,
		"score":         rev.Score,
		"correct":       rev.Correct,
	}); err != nil {
		logger.Log.Warn("Failed to publish event", zap.String("type", util.EventSubmissionGraded), zap.Error(err))
	}
	return out
}

// writeGraded 评分结果只接在暂定记录之后写入；用户在评分期间又提交过时返回 false
// 暂定记录未落库时无从比较，直接追加
func (g *GradingService) writeGraded(ctx context.Context, provisional, rev *model.Submission) bool {
	if provisional.Revision == 0 {
		if err := g.submissions.Create(ctx, rev); err != nil {
			logTransient("write graded submission", err, zap.String("session_id", rev.SessionID), zap.String("question_id", rev.QuestionID))
		}
		return true
	}
	written, err := g.submissions.CreateAfter(ctx, rev, provisional.Revision)
	if err != nil {
		logTransient("write graded submission", err, zap.String("session_id", rev.SessionID), zap.String("question_id", rev.QuestionID))
		return true
	}
	return written
}

func (g *GradingService) track(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.sessions[sessionID]
	if !ok {
		f = &inflight{}
		g.sessions[sessionID] = f
	}
	f.n++
	f.wg.Add(1)
	g.all.Add(1)
}

func (g *GradingService) untrack(sessionID string) {
	g.mu.Lock()
	f := g.sessions[sessionID]
	if f != nil {
		f.n--
		if f.n == 0 {
			delete(g.sessions, sessionID)
		}
	}
	g.mu.Unlock()
	if f != nil {
		f.wg.Done()
	}
	g.all.Done()
}

// Pending 会话中仍在评分的题数
func (g *GradingService) Pending(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.sessions[sessionID]; ok {
		return f.n
	}
	return 0
}

// WaitForSession 等待会话内的后台评分完成，超时返回 false
func (g *GradingService) WaitForSession(sessionID string, timeout time.Duration) bool {
	g.mu.Lock()
	f, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if !ok {
		return true
	}
	return waitTimeout(&f.wg, timeout)
}

// Shutdown 停止接收新任务并等待已派发的评分写回
func (g *GradingService) Shutdown(timeout time.Duration) bool {
	closed := make(chan struct{})
	go func() {
		g.pool.Close()
		close(closed)
	}()
	ok := waitTimeout(&g.all, timeout)
	select {
	case <-closed:
		<-g.done
	case <-time.After(time.Second):
	}
	return ok
}

func (g *GradingService) collect() {
	defer close(g.done)
	for r := range g.pool.Results() {
		g.observe(r.Output)
	}
}

func (g *GradingService) observe(out gradeOutcome) {
	if out.Superseded {
		monitoring.GradingTotal.WithLabelValues("superseded").Inc()
		return
	}
	monitoring.GradingTotal.WithLabelValues(string(out.Status)).Inc()
	monitoring.GradingDuration.Observe(out.Elapsed.Seconds())
	logger.Log.Debug("Grading finished",
		zap.String("session_id", out.SessionID),
		zap.String("question_id", out.QuestionID),
		zap.String("status", string(out.Status)),
		zap.Duration("elapsed", out.Elapsed),
	)
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func attemptID(rec *model.AttemptRecord) string {
	if rec == nil {
		return ""
	}
	return rec.ID
}
