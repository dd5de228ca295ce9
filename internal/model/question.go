package model

import "strings"

// AnswerKind 标准答案的类型：纯数字或符号/文本
type AnswerKind string

const (
	AnswerNumeric  AnswerKind = "numeric"
	AnswerSymbolic AnswerKind = "symbolic"
)

// swagger:model Question
// Question 题库中的一道题，核心只读
type Question struct {
	UUIDBase

	ProblemNumber   int        `gorm:"index" json:"problemNumber"` // 题号，同时决定所属分区
	Prompt          string     `gorm:"type:text" json:"prompt"`
	CanonicalAnswer string     `gorm:"type:varchar(255)" json:"-"`
	AnswerKind      AnswerKind `gorm:"size:16" json:"answerKind"`
	Solution        string     `gorm:"type:text" json:"-"`
	Difficulty      int        `gorm:"default:1" json:"difficulty"`
	SkillTags       string     `gorm:"type:varchar(255)" json:"skillTags"` // 逗号分隔
	ImageRef        string     `gorm:"type:varchar(512)" json:"imageRef,omitempty"`
	IsFallback      bool       `gorm:"index;default:false" json:"-"` // 备用题池
}

func (Question) TableName() string {
	return "questions"
}

// Tags 返回拆分后的技能标签
func (q *Question) Tags() []string {
	if q.SkillTags == "" {
		return nil
	}
	parts := strings.Split(q.SkillTags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
