package service

import (
	"exam_prep_backend/internal/model"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// AnswerValue 答案的标签联合：Numeric(decimal) 或 Symbolic(string)，分类只做一次
type AnswerValue struct {
	numeric bool
	number  decimal.Decimal
	text    string
}

var numericPattern = regexp.MustCompile(`^[+-]?(\d+([.,]\d*)?|[.,]\d+)$`)

// ClassifyAnswer 纯数字（可带符号与小数点/逗号）归为 Numeric，其余为 Symbolic
func ClassifyAnswer(raw string) AnswerValue {
	s := normalizeNumeric(raw)
	if numericPattern.MatchString(s) {
		if d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ".")); err == nil {
			return AnswerValue{numeric: true, number: d, text: strings.TrimSpace(raw)}
		}
	}
	return AnswerValue{text: strings.TrimSpace(raw)}
}

// CanonicalAnswer 按题目登记的类型解析标准答案，登记为 symbolic 时不再尝试数值化
func CanonicalAnswer(q *model.Question) AnswerValue {
	if q.AnswerKind == model.AnswerSymbolic {
		return AnswerValue{text: strings.TrimSpace(q.CanonicalAnswer)}
	}
	return ClassifyAnswer(q.CanonicalAnswer)
}

func (a AnswerValue) IsNumeric() bool { return a.numeric }

func (a AnswerValue) Decimal() decimal.Decimal { return a.number }

func (a AnswerValue) Text() string { return a.text }

func (a AnswerValue) IsEmpty() bool { return !a.numeric && a.text == "" }

// EqualNumeric 两侧均为 Numeric 时做精确小数比较
func (a AnswerValue) EqualNumeric(b AnswerValue) bool {
	return a.numeric && b.numeric && a.number.Equal(b.number)
}

// EqualFold 远程判题不可用时的本地兜底比较
func (a AnswerValue) EqualFold(b AnswerValue) bool {
	if a.numeric && b.numeric {
		return a.number.Equal(b.number)
	}
	return normalizeSymbolic(a.text) == normalizeSymbolic(b.text)
}

func (a AnswerValue) String() string {
	if a.numeric {
		return a.number.String()
	}
	return a.text
}

func normalizeNumeric(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "−", "-")
	return strings.TrimPrefix(s, "+")
}

var symbolicSpace = regexp.MustCompile(`\s+`)

func normalizeSymbolic(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "$")
	s = strings.ReplaceAll(s, "−", "-")
	s = symbolicSpace.ReplaceAllString(s, "")
	return strings.ToLower(s)
}
