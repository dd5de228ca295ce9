package model

import (
	"time"

	"gorm.io/gorm"
)

// swagger:model AttemptRecord
// AttemptRecord 用户对单题的一次作答记录，从打开到关闭
type AttemptRecord struct {
	UUIDBase

	UserID         uint           `gorm:"index:idx_attempt_user_question" json:"userId"`
	QuestionID     string         `gorm:"index:idx_attempt_user_question;type:varchar(36)" json:"questionId"`
	SessionID      string         `gorm:"index;type:varchar(36)" json:"sessionId"`
	StartedAt      time.Time      `gorm:"index" json:"startedAt"`
	Finished       bool           `gorm:"default:false" json:"finished"`
	Correct        *bool          `json:"correct"`
	Score          *float64       `json:"score"`
	DurationMs     int64          `json:"durationMs"`
	ResponseTimeMs int64          `json:"responseTimeMs"`
	SkillTags      string         `gorm:"type:varchar(255)" json:"skillTags"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (AttemptRecord) TableName() string {
	return "attempt_records"
}
