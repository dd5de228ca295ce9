package model

import "time"

// GradingStatus 主观题异步评分状态
type GradingStatus string

const (
	GradingNone     GradingStatus = "none"
	GradingPending  GradingStatus = "pending"
	GradingComplete GradingStatus = "complete"
	GradingFailed   GradingStatus = "failed"
)

// swagger:model Submission
// Submission 每次写入一行，同一 (session, question) 以最新的 WrittenAt/Revision 为准
type Submission struct {
	UUIDBase

	SessionID        string        `gorm:"uniqueIndex:idx_submission_revision,priority:1;type:varchar(36)" json:"sessionId"`
	QuestionID       string        `gorm:"uniqueIndex:idx_submission_revision,priority:2;type:varchar(36)" json:"questionId"`
	UserID           uint          `gorm:"index" json:"userId"`
	AttemptID        string        `gorm:"index;type:varchar(36)" json:"attemptId"`
	Answer           string        `gorm:"type:text" json:"answer"`
	SolutionText     string        `gorm:"type:text" json:"solutionText,omitempty"`
	SolutionImageRef string        `gorm:"type:varchar(512)" json:"solutionImageRef,omitempty"`
	Correct          *bool         `json:"correct"`
	Score            *float64      `json:"score"`
	Feedback         string        `gorm:"type:text" json:"feedback,omitempty"`
	RawFeedback      string        `gorm:"type:text" json:"rawFeedback,omitempty"`
	GradingStatus    GradingStatus `gorm:"size:16;default:'none'" json:"gradingStatus"`
	VerifyMethod     string        `gorm:"size:32" json:"verifyMethod"`
	WrittenAt        time.Time     `gorm:"index" json:"writtenAt"`
	Revision         int           `gorm:"uniqueIndex:idx_submission_revision,priority:3" json:"revision"`
}

func (Submission) TableName() string {
	return "submissions"
}

// NewerThan 判断 s 是否比 other 更新
func (s *Submission) NewerThan(other *Submission) bool {
	if other == nil {
		return true
	}
	if !s.WrittenAt.Equal(other.WrittenAt) {
		return s.WrittenAt.After(other.WrittenAt)
	}
	return s.Revision > other.Revision
}
