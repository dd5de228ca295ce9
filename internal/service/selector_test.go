package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"fmt"
	"math/rand"
	"testing"
)

func bucketFixture() ([]model.Question, map[string]MasteryStatus) {
	var questions []model.Question
	statuses := make(map[string]MasteryStatus)
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("q%02d", i)
		questions = append(questions, mkQuestion(id, i+1, "1", ""))
		switch i % 4 {
		case 0:
			statuses[id] = StatusCorrect
		case 1:
			statuses[id] = StatusWrong
		case 2:
			statuses[id] = StatusUnfinished
		}
		// i%4 == 3 没有记录，按未做过处理
	}
	return questions, statuses
}

func TestOrderBucketsByPriority(t *testing.T) {
	questions, statuses := bucketFixture()

	for seed := int64(0); seed < 50; seed++ {
		ordered := NewPrioritySelector(rand.NewSource(seed)).Order(questions, statuses, 0)
		if len(ordered) != len(questions) {
			t.Fatalf("seed %d: expected %d questions, got %d", seed, len(questions), len(ordered))
		}

		seen := make(map[string]bool)
		prev := StatusWrong
		for i, q := range ordered {
			if seen[q.ID] {
				t.Fatalf("seed %d: question %s appears twice", seed, q.ID)
			}
			seen[q.ID] = true

			status, ok := statuses[q.ID]
			if !ok {
				status = StatusUnseen
			}
			if status < prev {
				t.Fatalf("seed %d: position %d has %s after %s", seed, i, status, prev)
			}
			prev = status
		}
	}
}

func TestOrderShufflesWithinBucket(t *testing.T) {
	questions := []model.Question{
		mkQuestion("a", 1, "1", ""),
		mkQuestion("b", 2, "1", ""),
		mkQuestion("c", 3, "1", ""),
	}
	statuses := map[string]MasteryStatus{"a": StatusWrong, "b": StatusWrong, "c": StatusWrong}
	selector := NewPrioritySelector(rand.NewSource(7))

	const runs = 6000
	first := make(map[string]int)
	for i := 0; i < runs; i++ {
		first[selector.Order(questions, statuses, 0)[0].ID]++
	}

	for _, id := range []string{"a", "b", "c"} {
		got := first[id]
		if got < runs/3-300 || got > runs/3+300 {
			t.Errorf("question %s led %d of %d orderings, expected about %d", id, got, runs, runs/3)
		}
	}
}

func TestOrderLimitTruncatesAfterOrdering(t *testing.T) {
	questions, statuses := bucketFixture()
	ordered := NewPrioritySelector(rand.NewSource(1)).Order(questions, statuses, 3)
	if len(ordered) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(ordered))
	}
	for _, q := range ordered {
		if statuses[q.ID] != StatusWrong {
			t.Errorf("limited selection should keep the wrong bucket first, got %s", q.ID)
		}
	}
}

func TestOrderEmpty(t *testing.T) {
	if got := NewPrioritySelector(nil).Order(nil, nil, 5); len(got) != 0 {
		t.Errorf("expected empty ordering, got %d", len(got))
	}
}

func TestBlueprintSelectsOnePerSlot(t *testing.T) {
	fallback := mkQuestion("fb2", 2, "1", "")
	fallback.IsFallback = true
	store := &fakeQuestionStore{questions: []model.Question{
		mkQuestion("p1a", 1, "1", ""),
		mkQuestion("p1b", 1, "1", ""),
		fallback,
		mkQuestion("p4", 4, "1", ""),
	}}

	selector := NewBlueprintSelector(NewQuestionPool(store), []int{1, 2, 3, 4}, rand.NewSource(3))
	selected := selector.Select(context.Background())

	if len(selected) != 3 {
		t.Fatalf("expected 3 slots filled (slot 3 has no candidates), got %d", len(selected))
	}
	if selected[0].ProblemNumber != 1 {
		t.Errorf("slot 1: got problem %d", selected[0].ProblemNumber)
	}
	if selected[1].ID != "fb2" {
		t.Errorf("slot 2 should be filled from the fallback pool, got %s", selected[1].ID)
	}
	if selected[2].ID != "p4" {
		t.Errorf("slot 4: got %s", selected[2].ID)
	}
}

func TestBlueprintIgnoresHistory(t *testing.T) {
	store := &fakeQuestionStore{questions: []model.Question{
		mkQuestion("a", 1, "1", ""),
		mkQuestion("b", 1, "1", ""),
	}}
	selector := NewBlueprintSelector(NewQuestionPool(store), []int{1}, rand.NewSource(11))

	picked := make(map[string]bool)
	for i := 0; i < 200; i++ {
		picked[selector.Select(context.Background())[0].ID] = true
	}
	if !picked["a"] || !picked["b"] {
		t.Errorf("expected both candidates to be drawn over 200 runs, got %v", picked)
	}
}
