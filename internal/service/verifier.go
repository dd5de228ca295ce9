package service

import (
	"context"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// VerifyMethod 判题走的分支
type VerifyMethod string

const (
	MethodLocalNumeric   VerifyMethod = "local_numeric"
	MethodRemoteSemantic VerifyMethod = "remote_semantic"
	MethodLocalFallback  VerifyMethod = "local_fallback"
	MethodDeferred       VerifyMethod = "deferred_grading"
	MethodEmpty          VerifyMethod = "empty"
)

// Verdict 判题结果
type Verdict struct {
	Correct bool         `json:"correct"`
	Method  VerifyMethod `json:"method"`
}

// VerificationError 远程判题失败，由 Verify 统一降级
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification failed: %s: %v", e.Reason, e.Err)
	}
	return "verification failed: " + e.Reason
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// SemanticVerifier 远程语义等价判断
type SemanticVerifier interface {
	Equivalent(ctx context.Context, canonical, submitted string) (bool, error)
}

// VerificationPipeline 数值快速比较 -> 远程语义判断 -> 本地兜底比较
type VerificationPipeline struct {
	remote  SemanticVerifier
	timeout time.Duration
}

func NewVerificationPipeline(remote SemanticVerifier, timeout time.Duration) *VerificationPipeline {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &VerificationPipeline{remote: remote, timeout: timeout}
}

// Verify 永远返回结论，远程失败不会向上传播
func (p *VerificationPipeline) Verify(ctx context.Context, canonical AnswerValue, submitted string) Verdict {
	sub := ClassifyAnswer(submitted)

	ctx, span := tracing.StartSpan(ctx, "verification.verify",
		attribute.Bool("canonical.numeric", canonical.IsNumeric()),
		attribute.Bool("submitted.numeric", sub.IsNumeric()),
	)
	defer span.End()

	verdict, err := p.decide(ctx, canonical, sub)
	if err != nil {
		logger.Log.Warn("Remote verification unavailable, using local comparison", zap.Error(err))
		span.RecordError(err)
		verdict = Verdict{Correct: canonical.EqualFold(sub), Method: MethodLocalFallback}
	}

	span.SetAttributes(attribute.String("verdict.method", string(verdict.Method)), attribute.Bool("verdict.correct", verdict.Correct))
	monitoring.VerificationTotal.WithLabelValues(string(verdict.Method), strconv.FormatBool(verdict.Correct)).Inc()
	return verdict
}

func (p *VerificationPipeline) decide(ctx context.Context, canonical, sub AnswerValue) (Verdict, error) {
	if sub.IsEmpty() {
		return Verdict{Correct: false, Method: MethodEmpty}, nil
	}
	if canonical.IsNumeric() && sub.IsNumeric() {
		return Verdict{Correct: canonical.EqualNumeric(sub), Method: MethodLocalNumeric}, nil
	}
	if p.remote == nil {
		return Verdict{}, &VerificationError{Reason: "no remote verifier configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ok, err := p.remote.Equivalent(ctx, canonical.Text(), sub.Text())
	if err != nil {
		return Verdict{}, &VerificationError{Reason: "remote semantic check", Err: err}
	}
	return Verdict{Correct: ok, Method: MethodRemoteSemantic}, nil
}
