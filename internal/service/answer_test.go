package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"testing"
)

func TestClassifyAnswer(t *testing.T) {
	tests := []struct {
		raw     string
		numeric bool
		value   string
	}{
		{"3.5", true, "3.5"},
		{"3,5", true, "3.5"},
		{" 3.5 ", true, "3.5"},
		{"-0,50", true, "-0.5"},
		{"+2", true, "2"},
		{"−7", true, "-7"},
		{"x^2+1", false, "x^2+1"},
		{"[1;2)", false, "[1;2)"},
		{"1/2", false, "1/2"},
		{"5 cm", false, "5 cm"},
		{"1 000", false, "1 000"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ClassifyAnswer(tt.raw)
			if got.IsNumeric() != tt.numeric {
				t.Fatalf("ClassifyAnswer(%q).IsNumeric() = %v, want %v", tt.raw, got.IsNumeric(), tt.numeric)
			}
			if got.String() != tt.value {
				t.Errorf("ClassifyAnswer(%q).String() = %q, want %q", tt.raw, got.String(), tt.value)
			}
		})
	}

	if !ClassifyAnswer("   ").IsEmpty() {
		t.Error("blank answer should classify as empty")
	}
}

func TestCanonicalAnswerHonoursSymbolicKind(t *testing.T) {
	q := &model.Question{CanonicalAnswer: "2", AnswerKind: model.AnswerSymbolic}
	if CanonicalAnswer(q).IsNumeric() {
		t.Error("canonical answer registered as symbolic must not be parsed as a number")
	}
	q.AnswerKind = model.AnswerNumeric
	if !CanonicalAnswer(q).IsNumeric() {
		t.Error("numeric canonical answer should be numeric")
	}
}

func TestNumericNormalizationNeverCallsRemote(t *testing.T) {
	tests := []struct {
		canonical string
		submitted string
		correct   bool
	}{
		{"3.5", "3,5", true},
		{"3.5", "3.5", true},
		{"3.5", " 3.5 ", true},
		{"3.5", "3.50", true},
		{"3.6", "3,5", false},
		{"-0.5", "−0,5", true},
		{"12", "+12", true},
	}

	remote := &fakeVerifier{result: true}
	pipeline := NewVerificationPipeline(remote, 0)

	for _, tt := range tests {
		verdict := pipeline.Verify(context.Background(), ClassifyAnswer(tt.canonical), tt.submitted)
		if verdict.Correct != tt.correct {
			t.Errorf("Verify(%q, %q) correct = %v, want %v", tt.canonical, tt.submitted, verdict.Correct, tt.correct)
		}
		if verdict.Method != MethodLocalNumeric {
			t.Errorf("Verify(%q, %q) method = %s, want %s", tt.canonical, tt.submitted, verdict.Method, MethodLocalNumeric)
		}
	}
	if remote.Calls() != 0 {
		t.Errorf("numeric comparisons must stay local, remote called %d times", remote.Calls())
	}
}

func TestEqualFold(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"X^2", " x^2 ", true},
		{"$\\frac{1}{2}$", "\\frac{1}{2}", true},
		{"(1; 2)", "(1;2)", true},
		{"x^3", "x^2", false},
		{"0.5", "0,50", true},
	}
	for _, tt := range tests {
		if got := ClassifyAnswer(tt.a).EqualFold(ClassifyAnswer(tt.b)); got != tt.want {
			t.Errorf("EqualFold(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
