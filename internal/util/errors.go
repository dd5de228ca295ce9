package util

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionFinished  = errors.New("session already finished")
	ErrSessionNotActive = errors.New("session not running")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrIndexOutOfRange  = errors.New("question index out of range")
	ErrEmptyAnswer      = errors.New("answer is empty")

	// 以下错误不会中断会话，仅用于日志与降级分支
	ErrTransientPersistence          = errors.New("transient persistence error")
	ErrRemoteVerificationUnavailable = errors.New("remote verification unavailable")
	ErrMalformedGradingResponse      = errors.New("malformed grading response")
	ErrMissingQuestionData           = errors.New("missing question data")

	// 题池完全为空时返回，会话保持 idle 并标记为空
	ErrNoQuestions = errors.New("no questions available for scope")
)
