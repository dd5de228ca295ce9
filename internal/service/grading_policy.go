package service

import (
	"exam_prep_backend/internal/config"
	"sync"
	"time"
)

// SectionRule 一个题号区间的评分规则
type SectionRule struct {
	Name             string  `json:"name"`
	From             int     `json:"from"`
	To               int     `json:"to"`
	FreeResponse     bool    `json:"freeResponse"`
	PassThreshold    float64 `json:"passThreshold"`
	ProvisionalScore float64 `json:"provisionalScore"`
	MaxScore         float64 `json:"maxScore"`
}

func (r SectionRule) Contains(problemNumber int) bool {
	return problemNumber >= r.From && problemNumber <= r.To
}

// Passed 得分严格大于阈值才算正确
func (r SectionRule) Passed(score float64) bool {
	return score > r.PassThreshold
}

func (r SectionRule) maxPoints() float64 {
	if r.MaxScore > 0 {
		return r.MaxScore
	}
	return 1
}

const otherSection = "other"

// DefaultSections 19 道短答题加 6 道解答题
func DefaultSections() []SectionRule {
	return []SectionRule{
		{Name: "short", From: 1, To: 19, MaxScore: 1},
		{Name: "extended", From: 20, To: 25, FreeResponse: true, PassThreshold: 0, ProvisionalScore: 1, MaxScore: 4},
	}
}

// GradingPolicy 分区规则与结算等待时间，可随配置热更新
type GradingPolicy struct {
	mu          sync.RWMutex
	sections    []SectionRule
	settleDelay time.Duration
}

func NewGradingPolicy(cfg config.GradingConfig) *GradingPolicy {
	p := &GradingPolicy{}
	p.Reload(cfg)
	return p
}

func (p *GradingPolicy) Reload(cfg config.GradingConfig) {
	sections := make([]SectionRule, 0, len(cfg.Sections))
	for _, s := range cfg.Sections {
		sections = append(sections, SectionRule{
			Name:             s.Name,
			From:             s.From,
			To:               s.To,
			FreeResponse:     s.FreeResponse,
			PassThreshold:    s.PassThreshold,
			ProvisionalScore: s.ProvisionalScore,
			MaxScore:         s.MaxScore,
		})
	}
	if len(sections) == 0 {
		sections = DefaultSections()
	}

	p.mu.Lock()
	p.sections = sections
	p.settleDelay = cfg.SettleDelay
	p.mu.Unlock()
}

// SectionFor 返回题号所在分区，未配置的题号归入 other（即时判题，满分 1）
func (p *GradingPolicy) SectionFor(problemNumber int) SectionRule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sections {
		if s.Contains(problemNumber) {
			return s
		}
	}
	return SectionRule{Name: otherSection, From: problemNumber, To: problemNumber, MaxScore: 1}
}

func (p *GradingPolicy) Sections() []SectionRule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SectionRule, len(p.sections))
	copy(out, p.sections)
	return out
}

func (p *GradingPolicy) SettleDelay() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settleDelay
}
