package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// lockedRand 多个会话共享的随机源
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(src rand.Source) *lockedRand {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &lockedRand{rng: rand.New(src)}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// PrioritySelector 按掌握状态分桶，桶内洗牌后依次拼接：错题、未完成、未做、已掌握
type PrioritySelector struct {
	rand *lockedRand
}

func NewPrioritySelector(src rand.Source) *PrioritySelector {
	return &PrioritySelector{rand: newLockedRand(src)}
}

// Order limit <= 0 表示不截断
func (s *PrioritySelector) Order(questions []model.Question, statuses map[string]MasteryStatus, limit int) []model.Question {
	buckets := make(map[MasteryStatus][]model.Question, 4)
	for _, q := range questions {
		status, ok := statuses[q.ID]
		if !ok {
			status = StatusUnseen
		}
		buckets[status] = append(buckets[status], q)
	}

	ordered := make([]model.Question, 0, len(questions))
	for _, status := range []MasteryStatus{StatusWrong, StatusUnfinished, StatusUnseen, StatusCorrect} {
		bucket := buckets[status]
		s.shuffle(bucket)
		ordered = append(ordered, bucket...)
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

// shuffle Fisher-Yates
func (s *PrioritySelector) shuffle(items []model.Question) {
	for i := len(items) - 1; i > 0; i-- {
		j := s.rand.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// BlueprintSelector 固定试卷：每个题位随机抽一道，与作答历史无关
type BlueprintSelector struct {
	pool  *QuestionPool
	slots []int
	rand  *lockedRand
}

func NewBlueprintSelector(pool *QuestionPool, slots []int, src rand.Source) *BlueprintSelector {
	return &BlueprintSelector{pool: pool, slots: slots, rand: newLockedRand(src)}
}

func (b *BlueprintSelector) Slots() []int {
	return b.slots
}

// Select 题位没有候选时从备用题池补位，仍然没有则跳过该题位
func (b *BlueprintSelector) Select(ctx context.Context) []model.Question {
	chosen := make(map[string]bool, len(b.slots))
	selected := make([]model.Question, 0, len(b.slots))

	for _, slot := range b.slots {
		candidates, err := b.pool.Candidates(ctx, slot)
		if err != nil {
			logTransient("load blueprint candidates", err, zap.Int("slot", slot))
		}
		q, ok := b.pick(candidates, chosen)
		if !ok {
			fallback, err := b.pool.Fallback(ctx, slot)
			if err != nil {
				logTransient("load fallback candidates", err, zap.Int("slot", slot))
			}
			q, ok = b.pick(fallback, chosen)
			if ok {
				logger.Log.Info("Blueprint slot filled from fallback pool", zap.Int("slot", slot), zap.String("question_id", q.ID))
			}
		}
		if !ok {
			logger.Log.Warn("Blueprint slot has no candidates, skipping",
				zap.Int("slot", slot),
				zap.Error(util.ErrMissingQuestionData),
			)
			continue
		}
		chosen[q.ID] = true
		selected = append(selected, q)
	}
	return selected
}

func (b *BlueprintSelector) pick(candidates []model.Question, chosen map[string]bool) (model.Question, bool) {
	available := make([]model.Question, 0, len(candidates))
	for _, c := range candidates {
		if !chosen[c.ID] {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return model.Question{}, false
	}
	return available[b.rand.Intn(len(available))], true
}
