package service

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

type harness struct {
	questions   *fakeQuestionStore
	attemptRows *fakeAttemptStore
	subs        *fakeSubmissionStore
	records     *fakeRecordStore
	states      *MemoryStateStore
	publisher   *fakePublisher
	verifier    *fakeVerifier
	grader      *fakeGrader
	clock       *fakeClock

	policy   *GradingPolicy
	attempts *AttemptService
	grading  *GradingService
	scoring  *ScoringService
	sessions *SessionService
	deps     SessionDeps
}

type harnessOptions struct {
	slots        []int
	examDuration time.Duration
	limit        int
	sections     []config.SectionConfig
}

func newHarness(t *testing.T, questions []model.Question, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{
		questions:   &fakeQuestionStore{questions: questions},
		attemptRows: newFakeAttemptStore(),
		subs:        &fakeSubmissionStore{},
		records:     newFakeRecordStore(),
		states:      NewMemoryStateStore(),
		publisher:   &fakePublisher{},
		verifier:    &fakeVerifier{},
		grader:      &fakeGrader{scores: make(map[int]float64)},
		clock:       newFakeClock(),
	}

	gradingCfg := config.GradingConfig{Workers: 2, QueueSize: 8, SettleDelay: 2 * time.Second, Sections: opts.sections}
	h.policy = NewGradingPolicy(gradingCfg)
	h.attempts = NewAttemptService(h.attemptRows)
	h.attempts.now = h.clock.Now

	pipeline := NewVerificationPipeline(h.verifier, 100*time.Millisecond)
	h.grading = NewGradingService(pipeline, h.grader, h.subs, h.attempts, h.policy, h.publisher, gradingCfg, 5*time.Second)
	h.grading.now = h.clock.Now
	t.Cleanup(func() { h.grading.Shutdown(5 * time.Second) })

	h.scoring = NewScoringService(h.subs, h.attemptRows, h.policy, h.grading)
	h.scoring.now = h.clock.Now

	pool := NewQuestionPool(h.questions)
	h.deps = SessionDeps{
		Questions: h.questions,
		Pool:      pool,
		Mastery:   NewMasteryTracker(h.attemptRows),
		Selector:  NewPrioritySelector(rand.NewSource(1)),
		Blueprint: NewBlueprintSelector(pool, opts.slots, rand.NewSource(1)),
		Attempts:  h.attempts,
		Grading:   h.grading,
		Scoring:   h.scoring,
		Records:   h.records,
		States:    h.states,
		Publisher: h.publisher,
		Options: SessionOptions{
			PracticeLimit:  opts.limit,
			ExamDuration:   opts.examDuration,
			RetainFinished: time.Hour,
		},
	}
	h.sessions = h.newSessionService()
	return h
}

// newSessionService 共享同一套存储的新实例，模拟进程重启
func (h *harness) newSessionService() *SessionService {
	svc := NewSessionService(h.deps)
	svc.now = h.clock.Now
	return svc
}

// examQuestions 题号 1..n 各一道，标准答案等于题号
func examQuestions(n int) []model.Question {
	questions := make([]model.Question, 0, n)
	for i := 1; i <= n; i++ {
		questions = append(questions, mkQuestion(fmt.Sprintf("p%02d", i), i, fmt.Sprint(i), "exam"))
	}
	return questions
}

func blueprintSlots(n int) []int {
	slots := make([]int, n)
	for i := range slots {
		slots[i] = i + 1
	}
	return slots
}
