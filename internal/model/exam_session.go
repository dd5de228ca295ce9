package model

import "time"

type SessionMode string

const (
	ModePractice SessionMode = "practice"
	ModeExam     SessionMode = "exam"
)

type SessionStatus string

const (
	SessionIdle     SessionStatus = "idle"
	SessionRunning  SessionStatus = "running"
	SessionFinished SessionStatus = "finished"
)

type FinishReason string

const (
	FinishManual   FinishReason = "manual"
	FinishDeadline FinishReason = "deadline"
)

// swagger:model ExamSession
// ExamSession 练习/模拟考试会话的持久化头信息
type ExamSession struct {
	UUIDBase

	UserID       uint          `gorm:"index" json:"userId"`
	Mode         SessionMode   `gorm:"size:16" json:"mode"`
	Status       SessionStatus `gorm:"size:16;default:'idle'" json:"status"`
	QuestionIDs  string        `gorm:"type:text" json:"questionIds"` // JSON 数组，保持顺序
	StartedAt    time.Time     `json:"startedAt"`
	Deadline     *time.Time    `json:"deadline,omitempty"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	FinishReason FinishReason  `gorm:"size:16" json:"finishReason,omitempty"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}
