package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"sync"

	"go.uber.org/zap"
)

// TagCache 会话级的题目标签缓存，会话开始时创建、结束时丢弃
type TagCache struct {
	store QuestionStore

	mu      sync.Mutex
	tags    map[string][]string
	lookups int
}

func NewTagCache(store QuestionStore) *TagCache {
	return &TagCache{store: store, tags: make(map[string][]string)}
}

// Resolve 同一题目只解析一次，题目自带标签时不访问存储
func (c *TagCache) Resolve(ctx context.Context, q *model.Question) []string {
	if c == nil {
		return q.Tags()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tags, ok := c.tags[q.ID]; ok {
		return tags
	}

	tags := q.Tags()
	if len(tags) == 0 && c.store != nil {
		c.lookups++
		raw, err := c.store.FindSkillTags(ctx, q.ID)
		if err != nil {
			logger.Log.Warn("Failed to resolve skill tags",
				zap.String("question_id", q.ID),
				zap.Error(err),
			)
		} else {
			tags = util.SplitCSV(raw)
		}
	}
	c.tags[q.ID] = tags
	return tags
}

// Lookups 访问存储的次数
func (c *TagCache) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}
