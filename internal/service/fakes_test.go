package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func mkQuestion(id string, number int, canonical string, tags string) model.Question {
	return model.Question{
		UUIDBase:        model.UUIDBase{ID: id},
		ProblemNumber:   number,
		Prompt:          "prompt " + id,
		CanonicalAnswer: canonical,
		Solution:        "reference solution " + id,
		SkillTags:       tags,
	}
}

type fakeQuestionStore struct {
	mu        sync.Mutex
	questions []model.Question
	tagRows   map[string]string
	tagCalls  int
	err       error
}

func (s *fakeQuestionStore) FindByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Question
	for _, id := range ids {
		for _, q := range s.questions {
			if q.ID == id {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) FindBySkills(ctx context.Context, skills []string) ([]model.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Question
	for _, q := range s.questions {
		if q.IsFallback {
			continue
		}
		if len(skills) == 0 {
			out = append(out, q)
			continue
		}
		for _, tag := range q.Tags() {
			if containsString(skills, tag) {
				out = append(out, q)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) FindByProblemNumber(ctx context.Context, n int) ([]model.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Question
	for _, q := range s.questions {
		if q.ProblemNumber == n && !q.IsFallback {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) FindFallback(ctx context.Context, n int) ([]model.Question, error) {
	var out []model.Question
	for _, q := range s.questions {
		if q.ProblemNumber == n && q.IsFallback {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) FindSkillTags(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagCalls++
	return s.tagRows[id], nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type fakeAttemptStore struct {
	mu        sync.Mutex
	rows      map[string]model.AttemptRecord
	seq       map[string]int
	next      int
	discarded []string
	failWrite bool
	failRead  bool
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{rows: make(map[string]model.AttemptRecord), seq: make(map[string]int)}
}

func (s *fakeAttemptStore) put(a *model.AttemptRecord) {
	if a.ID == "" {
		a.ID = model.GenerateUUID()
	}
	if _, ok := s.seq[a.ID]; !ok {
		s.next++
		s.seq[a.ID] = s.next
	}
	s.rows[a.ID] = *a
}

func (s *fakeAttemptStore) Create(ctx context.Context, a *model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return errStoreDown
	}
	s.put(a)
	return nil
}

func (s *fakeAttemptStore) Update(ctx context.Context, a *model.AttemptRecord) error {
	return s.Create(ctx, a)
}

func (s *fakeAttemptStore) FindByID(ctx context.Context, id string) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	a, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (s *fakeAttemptStore) sorted(filter func(model.AttemptRecord) bool) []model.AttemptRecord {
	var out []model.AttemptRecord
	for _, a := range s.rows {
		if filter(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

func (s *fakeAttemptStore) LatestByUserAndQuestion(ctx context.Context, userID uint, questionID string) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	rows := s.sorted(func(a model.AttemptRecord) bool { return a.UserID == userID && a.QuestionID == questionID })
	if len(rows) == 0 {
		return nil, nil
	}
	a := rows[len(rows)-1]
	return &a, nil
}

func (s *fakeAttemptStore) LatestByUserForQuestions(ctx context.Context, userID uint, ids []string) (map[string]*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	out := make(map[string]*model.AttemptRecord)
	for _, a := range s.sorted(func(a model.AttemptRecord) bool { return a.UserID == userID && containsString(ids, a.QuestionID) }) {
		a := a
		out[a.QuestionID] = &a
	}
	return out, nil
}

func (s *fakeAttemptStore) FindFinishedInSession(ctx context.Context, userID uint, questionID, sessionID string) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	rows := s.sorted(func(a model.AttemptRecord) bool {
		return a.UserID == userID && a.QuestionID == questionID && a.SessionID == sessionID && a.Finished
	})
	if len(rows) == 0 {
		return nil, nil
	}
	a := rows[0]
	return &a, nil
}

func (s *fakeAttemptStore) ListBySession(ctx context.Context, sessionID string) ([]model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	return s.sorted(func(a model.AttemptRecord) bool { return a.SessionID == sessionID }), nil
}

func (s *fakeAttemptStore) Discard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	s.discarded = append(s.discarded, id)
	return nil
}

func (s *fakeAttemptStore) count(userID uint, questionID string, finished *bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.rows {
		if a.UserID == userID && a.QuestionID == questionID && (finished == nil || a.Finished == *finished) {
			n++
		}
	}
	return n
}

type fakeSubmissionStore struct {
	mu   sync.Mutex
	rows []model.Submission
	fail bool
}

func (s *fakeSubmissionStore) Create(ctx context.Context, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.append(sub, s.maxRevision(sub.SessionID, sub.QuestionID)+1)
	return nil
}

func (s *fakeSubmissionStore) CreateAfter(ctx context.Context, sub *model.Submission, after int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errStoreDown
	}
	if s.maxRevision(sub.SessionID, sub.QuestionID) != after {
		return false, nil
	}
	s.append(sub, after+1)
	return true, nil
}

func (s *fakeSubmissionStore) maxRevision(sessionID, questionID string) int {
	max := 0
	for _, r := range s.rows {
		if r.SessionID == sessionID && r.QuestionID == questionID && r.Revision > max {
			max = r.Revision
		}
	}
	return max
}

func (s *fakeSubmissionStore) append(sub *model.Submission, rev int) {
	if sub.ID == "" {
		sub.ID = model.GenerateUUID()
	}
	sub.Revision = rev
	if sub.WrittenAt.IsZero() {
		sub.WrittenAt = time.Now()
	}
	s.rows = append(s.rows, *sub)
}

func (s *fakeSubmissionStore) LatestForQuestion(ctx context.Context, sessionID, questionID string) (*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Submission
	for i := range s.rows {
		r := s.rows[i]
		if r.SessionID == sessionID && r.QuestionID == questionID && r.NewerThan(latest) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeSubmissionStore) LatestForSession(ctx context.Context, sessionID string) (map[string]*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	out := make(map[string]*model.Submission)
	for i := range s.rows {
		r := s.rows[i]
		if r.SessionID == sessionID && r.NewerThan(out[r.QuestionID]) {
			out[r.QuestionID] = &r
		}
	}
	return out, nil
}

func (s *fakeSubmissionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeRecordStore struct {
	mu   sync.Mutex
	rows map[string]model.ExamSession
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{rows: make(map[string]model.ExamSession)}
}

func (s *fakeRecordStore) Create(ctx context.Context, r *model.ExamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = *r
	return nil
}

func (s *fakeRecordStore) Update(ctx context.Context, r *model.ExamSession) error {
	return s.Create(ctx, r)
}

func (s *fakeRecordStore) FindByID(ctx context.Context, id string) (*model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fakeVerifier struct {
	mu     sync.Mutex
	calls  int
	result bool
	err    error
	block  bool
}

func (v *fakeVerifier) Equivalent(ctx context.Context, canonical, submitted string) (bool, error) {
	v.mu.Lock()
	v.calls++
	block, result, err := v.block, v.result, v.err
	v.mu.Unlock()
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return result, err
}

func (v *fakeVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// fakeGrader 按题号返回分数；gate 非空时评分阻塞直到关闭
type fakeGrader struct {
	mu     sync.Mutex
	scores map[int]float64
	fn     func(req GradeRequest) (*GradeResult, error)
	gate   chan struct{}
	calls  int
}

func (g *fakeGrader) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	g.mu.Lock()
	g.calls++
	gate, fn := g.gate, g.fn
	score, ok := g.scores[req.ProblemNumber]
	g.mu.Unlock()

	if gate != nil && !strings.Contains(req.Solution, "nogate") {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(req)
	}
	if !ok {
		return nil, &GradeError{Reason: "no score scripted", Raw: fmt.Sprintf("problem %d", req.ProblemNumber)}
	}
	return &GradeResult{Score: score, Feedback: fmt.Sprintf("scored %v", score), Raw: fmt.Sprintf(`{"score": %v}`, score)}, nil
}
