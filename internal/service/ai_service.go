package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/util"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AIService OpenAI 兼容接口，提供语义等价判断与主观题评分
type AIService struct {
	config config.AIConfig
	client *http.Client
}

var (
	_ SemanticVerifier = (*AIService)(nil)
	_ SolutionGrader   = (*AIService)(nil)
)

func NewAIService(cfg config.AIConfig) *AIService {
	timeout := cfg.GradeTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []AIChatMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GradeRequest 主观题评分输入
type GradeRequest struct {
	ProblemNumber     int
	Prompt            string
	ReferenceSolution string
	Solution          string
	SolutionImageRef  string
	MaxScore          float64
}

// GradeResult 评分结果，Raw 保留模型原始输出
type GradeResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Raw      string  `json:"-"`
}

// GradeError 评分失败，Raw 为最后一次模型输出（可能为空）
type GradeError struct {
	Reason  string
	Raw     string
	Wrapped error
}

func (e *GradeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("grading failed: %s: %v", e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("grading failed: %s", e.Reason)
}

func (e *GradeError) Unwrap() error {
	return e.Wrapped
}

const maxGradeRetries = 2

func (s *AIService) available() bool {
	return s.config.BaseURL != ""
}

// Equivalent 判断两个数学表达式是否等价，模型只允许回答 YES/NO
func (s *AIService) Equivalent(ctx context.Context, canonical, submitted string) (bool, error) {
	if !s.available() {
		return false, util.ErrRemoteVerificationUnavailable
	}

	messages := []AIChatMessage{
		{
			Role: "system",
			Content: "You compare two mathematical answers. Reply with exactly one word: YES if they are mathematically equivalent " +
				"(same value, same set or interval, same expression up to algebraic rearrangement or formatting), otherwise NO.",
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("Reference answer: %s\nStudent answer: %s", canonical, submitted),
		},
	}

	reply, err := s.chat(ctx, messages)
	if err != nil {
		return false, fmt.Errorf("%w: %v", util.ErrRemoteVerificationUnavailable, err)
	}

	word := strings.ToUpper(strings.TrimSpace(reply))
	if fields := strings.Fields(word); len(fields) > 0 {
		word = fields[0]
	}
	word = strings.Trim(word, ".,!:;\"'`*")
	switch word {
	case "YES", "TRUE":
		return true, nil
	case "NO", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected verifier reply %q", util.ErrRemoteVerificationUnavailable, reply)
}

// Grade 对照参考解答给手写/文字解答打分，解析失败时重试一次
func (s *AIService) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	if !s.available() {
		return nil, &GradeError{Reason: "grading service not configured", Wrapped: util.ErrRemoteVerificationUnavailable}
	}

	messages := []AIChatMessage{
		{Role: "system", Content: gradingSystemPrompt(req.MaxScore)},
		{Role: "user", Content: gradingUserPrompt(req)},
	}

	var lastErr error
	var lastRaw string
	for attempt := 0; attempt < maxGradeRetries; attempt++ {
		raw, err := s.chat(ctx, messages)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		lastRaw = raw

		result, err := parseGradeResult(raw, req.MaxScore)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if errors.Is(lastErr, util.ErrMalformedGradingResponse) {
		return nil, &GradeError{Reason: fmt.Sprintf("failed after %d attempts", maxGradeRetries), Raw: lastRaw, Wrapped: lastErr}
	}
	return nil, &GradeError{Reason: "grading service unreachable", Raw: lastRaw, Wrapped: fmt.Errorf("%w: %v", util.ErrRemoteVerificationUnavailable, lastErr)}
}

func gradingSystemPrompt(maxScore float64) string {
	return fmt.Sprintf("You are an exam grader. Compare the student's full written solution with the reference solution. "+
		"Award an integer score from 0 to %s for correctness and completeness of the reasoning, not only the final answer. "+
		`Respond with ONLY this JSON, no markdown: {"score": <number>, "feedback": "<short feedback>"}`,
		strconv.FormatFloat(maxScore, 'f', -1, 64))
}

func gradingUserPrompt(req GradeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROBLEM %d:\n%s\n\nREFERENCE SOLUTION:\n%s\n\nSTUDENT SOLUTION:\n%s\n", req.ProblemNumber, req.Prompt, req.ReferenceSolution, req.Solution)
	if req.SolutionImageRef != "" {
		fmt.Fprintf(&b, "\n(solution photo: %s)\n", req.SolutionImageRef)
	}
	return b.String()
}

// parseGradeResult 从模型输出中提取 JSON，分数必须在 [0, maxScore] 内
func parseGradeResult(raw string, maxScore float64) (*GradeResult, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object found", util.ErrMalformedGradingResponse)
	}

	var payload struct {
		Score    *json.Number `json:"score"`
		Feedback string       `json:"feedback"`
	}
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMalformedGradingResponse, err)
	}
	if payload.Score == nil {
		return nil, fmt.Errorf("%w: score missing", util.ErrMalformedGradingResponse)
	}
	score, err := payload.Score.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: score %q is not a number", util.ErrMalformedGradingResponse, payload.Score.String())
	}
	if score < 0 || (maxScore > 0 && score > maxScore) {
		return nil, fmt.Errorf("%w: score %v out of range", util.ErrMalformedGradingResponse, score)
	}
	return &GradeResult{Score: score, Feedback: strings.TrimSpace(payload.Feedback), Raw: raw}, nil
}

// extractJSON 找到最外层 JSON 对象，忽略字符串内的花括号
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func (s *AIService) chat(ctx context.Context, messages []AIChatMessage) (string, error) {
	reqBody := ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		Temperature: 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AI returned no choices")
}
