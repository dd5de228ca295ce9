package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"testing"
	"time"
)

func TestScoringThresholdIsConfigurable(t *testing.T) {
	ctx := context.Background()
	subs := &fakeSubmissionStore{}
	q := mkQuestion("q21", 21, "", "")
	subs.Create(ctx, &model.Submission{SessionID: "s1", QuestionID: "q21", Score: util.Float64Ptr(1), Correct: util.BoolPtr(true), GradingStatus: model.GradingComplete})

	tests := []struct {
		threshold float64
		correct   bool
	}{
		{0, true},
		{1, false},
	}
	for _, tt := range tests {
		policy := NewGradingPolicy(config.GradingConfig{Sections: []config.SectionConfig{
			{Name: "extended", From: 20, To: 25, FreeResponse: true, PassThreshold: tt.threshold, MaxScore: 4},
		}})
		report := NewScoringService(subs, newFakeAttemptStore(), policy, nil).Build(ctx, ScoreInput{SessionID: "s1", Questions: []model.Question{q}})
		if report.Entries[0].Correct != tt.correct {
			t.Errorf("threshold %v: correct = %v, want %v", tt.threshold, report.Entries[0].Correct, tt.correct)
		}
		if report.Total.Points != 1 {
			t.Errorf("threshold %v: points = %v, want 1", tt.threshold, report.Total.Points)
		}
	}
}

func TestScoringUsesLatestByTimestampThenRevision(t *testing.T) {
	ctx := context.Background()
	subs := &fakeSubmissionStore{}
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	subs.Create(ctx, &model.Submission{SessionID: "s1", QuestionID: "q1", Answer: "late", Correct: util.BoolPtr(true), WrittenAt: base.Add(time.Minute)})
	subs.Create(ctx, &model.Submission{SessionID: "s1", QuestionID: "q1", Answer: "clock skew", Correct: util.BoolPtr(false), WrittenAt: base})
	subs.Create(ctx, &model.Submission{SessionID: "s1", QuestionID: "q2", Answer: "a", Correct: util.BoolPtr(false), WrittenAt: base})
	subs.Create(ctx, &model.Submission{SessionID: "s1", QuestionID: "q2", Answer: "b", Correct: util.BoolPtr(true), WrittenAt: base})

	questions := []model.Question{mkQuestion("q1", 1, "1", ""), mkQuestion("q2", 2, "2", ""), mkQuestion("q3", 3, "3", "")}
	report := NewScoringService(subs, newFakeAttemptStore(), NewGradingPolicy(config.GradingConfig{}), nil).
		Build(ctx, ScoreInput{SessionID: "s1", Questions: questions, StartedAt: base, FinishedAt: &base})

	if report.Entries[0].Answer != "late" || report.Entries[1].Answer != "b" {
		t.Errorf("latest entries: %q, %q", report.Entries[0].Answer, report.Entries[1].Answer)
	}
	if report.Entries[2].Attempted {
		t.Error("question without submissions should be unattempted")
	}
	if report.Total.Attempted != 2 || report.Total.Correct != 2 || report.ElapsedMs != 0 {
		t.Errorf("unexpected totals %+v elapsed=%d", report.Total, report.ElapsedMs)
	}

	if _, err := report.Page(-1); !errors.Is(err, util.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestScoringSurvivesStoreFailure(t *testing.T) {
	subs := &fakeSubmissionStore{fail: true}
	report := NewScoringService(subs, newFakeAttemptStore(), NewGradingPolicy(config.GradingConfig{}), nil).
		Build(context.Background(), ScoreInput{SessionID: "s1", Questions: []model.Question{mkQuestion("q1", 1, "1", "")}})
	if report.Total.Total != 1 || report.Total.Attempted != 0 {
		t.Errorf("unreadable submissions should count as unattempted, got %+v", report.Total)
	}
}

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	if got, err := store.Load(ctx, "missing"); got != nil || err != nil {
		t.Errorf("missing snapshot: (%v, %v)", got, err)
	}
	store.Save(ctx, SessionState{ID: "s1", Index: 2, Drafts: map[string]string{"q": "d"}})
	got, _ := store.Load(ctx, "s1")
	if got == nil || got.Index != 2 || got.Drafts["q"] != "d" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	store.Delete(ctx, "s1")
	if got, _ := store.Load(ctx, "s1"); got != nil {
		t.Error("snapshot should be deleted")
	}
}
