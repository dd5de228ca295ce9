package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/database"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type memoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (p *memoryProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.objects == nil {
		p.objects = make(map[string][]byte)
	}
	p.objects[filename] = data
	return p.GetURL(filename), nil
}

func (p *memoryProvider) Delete(ctx context.Context, filename string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, filename)
	return nil
}

func (p *memoryProvider) GetURL(filename string) string {
	return "/uploads/" + filename
}

func (p *memoryProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

type testServer struct {
	sessions *service.SessionService
	mastery  *service.MasteryTracker
	storage  *memoryProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seed := []model.Question{
		{UUIDBase: model.UUIDBase{ID: "a"}, ProblemNumber: 1, Prompt: "2+2", CanonicalAnswer: "4", AnswerKind: model.AnswerNumeric, SkillTags: "arithmetic"},
		{UUIDBase: model.UUIDBase{ID: "b"}, ProblemNumber: 20, Prompt: "prove it", CanonicalAnswer: "x", AnswerKind: model.AnswerSymbolic, Solution: "reference", SkillTags: "proof"},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	questions := repository.NewQuestionRepository(db)
	attempts := repository.NewAttemptRepository(db)
	submissions := repository.NewSubmissionRepository(db)

	gradingCfg := config.GradingConfig{Workers: 1, QueueSize: 4, SettleDelay: time.Second}
	policy := service.NewGradingPolicy(gradingCfg)
	attemptService := service.NewAttemptService(attempts)
	grading := service.NewGradingService(service.NewVerificationPipeline(nil, time.Second), nil, submissions, attemptService, policy, nil, gradingCfg, time.Second)
	t.Cleanup(func() { grading.Shutdown(5 * time.Second) })

	pool := service.NewQuestionPool(questions)
	mastery := service.NewMasteryTracker(attempts)
	sessions := service.NewSessionService(service.SessionDeps{
		Questions: questions,
		Pool:      pool,
		Mastery:   mastery,
		Selector:  service.NewPrioritySelector(rand.NewSource(1)),
		Blueprint: service.NewBlueprintSelector(pool, []int{1, 20}, rand.NewSource(1)),
		Attempts:  attemptService,
		Grading:   grading,
		Scoring:   service.NewScoringService(submissions, attempts, policy, grading),
		Records:   repository.NewSessionRepository(db),
		Options:   service.SessionOptions{PracticeLimit: 10, RetainFinished: time.Hour},
	})

	return &testServer{sessions: sessions, mastery: mastery, storage: &memoryProvider{}}
}

// router 为指定用户注册路由；userID 为 0 时不注入身份
func (s *testServer) router(userID uint) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set("user", &util.Claims{UserID: userID})
		}
		c.Next()
	})

	sc := NewSessionController(s.sessions, &service.StorageService{Provider: s.storage})
	mc := NewMasteryController(s.mastery)
	api := r.Group("/api")
	api.POST("/sessions", sc.Start)
	api.GET("/sessions/:id", sc.State)
	api.POST("/sessions/:id/next", sc.Next)
	api.POST("/sessions/:id/prev", sc.Prev)
	api.POST("/sessions/:id/jump", sc.Jump)
	api.PUT("/sessions/:id/draft", sc.SaveDraft)
	api.POST("/sessions/:id/submit", sc.Submit)
	api.POST("/sessions/:id/solutions/photo", sc.UploadPhoto)
	api.POST("/sessions/:id/finish", sc.Finish)
	api.GET("/sessions/:id/report", sc.Report)
	api.GET("/sessions/:id/review", sc.Review)
	api.GET("/mastery", mc.GetMastery)
	return r
}

func do(t *testing.T, r *gin.Engine, method, url string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, url, w.Body.String(), err)
	}
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
}

type viewPayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Index   int    `json:"index"`
	Draft   string `json:"draft"`
	Current *struct {
		ID string `json:"id"`
	} `json:"current"`
}

func startSession(t *testing.T, r *gin.Engine, ids ...string) viewPayload {
	t.Helper()
	code, env := do(t, r, http.MethodPost, "/api/sessions", gin.H{"questionIds": ids})
	if code != http.StatusCreated {
		t.Fatalf("start: status %d, %s", code, env.Message)
	}
	var view viewPayload
	decode(t, env.Data, &view)
	return view
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	r := srv.router(1)

	view := startSession(t, r, "a")
	if view.Status != "running" || view.Current == nil || view.Current.ID != "a" {
		t.Fatalf("start view = %+v", view)
	}
	base := "/api/sessions/" + view.ID

	code, env := do(t, r, http.MethodPut, base+"/draft", gin.H{"text": "3"})
	if code != http.StatusOK {
		t.Fatalf("draft: status %d", code)
	}
	decode(t, env.Data, &view)
	if view.Draft != "3" {
		t.Errorf("draft = %q", view.Draft)
	}

	if code, _ := do(t, r, http.MethodPost, base+"/submit", gin.H{}); code != http.StatusBadRequest {
		t.Errorf("empty submit: status %d, want 400", code)
	}

	code, env = do(t, r, http.MethodPost, base+"/submit", gin.H{"answer": " 4 "})
	if code != http.StatusOK {
		t.Fatalf("submit: status %d, %s", code, env.Message)
	}
	var result service.SubmitResult
	decode(t, env.Data, &result)
	if !result.Correct || result.Pending || result.QuestionID != "a" {
		t.Errorf("submit result = %+v", result)
	}

	if code, _ := do(t, r, http.MethodGet, base+"/review", nil); code != http.StatusConflict {
		t.Errorf("review before finish: status %d, want 409", code)
	}

	code, env = do(t, r, http.MethodPost, base+"/finish", nil)
	if code != http.StatusOK {
		t.Fatalf("finish: status %d, %s", code, env.Message)
	}
	var report service.Report
	decode(t, env.Data, &report)
	if report.Total.Correct != 1 || report.Total.Attempted != 1 || len(report.Entries) != 1 {
		t.Errorf("report total = %+v, entries %d", report.Total, len(report.Entries))
	}

	if code, _ := do(t, r, http.MethodPost, base+"/submit", gin.H{"answer": "5"}); code != http.StatusConflict {
		t.Errorf("submit after finish: status %d, want 409", code)
	}

	code, env = do(t, r, http.MethodGet, base+"/review?index=0", nil)
	if code != http.StatusOK {
		t.Fatalf("review: status %d", code)
	}
	var page service.ReviewPage
	decode(t, env.Data, &page)
	if page.Count != 1 || page.HasNext || page.HasPrev {
		t.Errorf("review page = %+v", page)
	}
	if code, _ := do(t, r, http.MethodGet, base+"/review?index=3", nil); code != http.StatusBadRequest {
		t.Errorf("review out of range: status %d, want 400", code)
	}
	if code, _ := do(t, r, http.MethodGet, base+"/review?index=x", nil); code != http.StatusBadRequest {
		t.Errorf("review bad index: status %d, want 400", code)
	}

	code, env = do(t, r, http.MethodGet, "/api/mastery?questionIds=a,b", nil)
	if code != http.StatusOK {
		t.Fatalf("mastery: status %d", code)
	}
	var entries []service.MasteryEntry
	decode(t, env.Data, &entries)
	got := map[string]string{}
	for _, e := range entries {
		got[e.QuestionID] = e.Status
	}
	if got["a"] != "correct" || got["b"] != "unseen" {
		t.Errorf("mastery = %v", got)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/mastery", nil); code != http.StatusBadRequest {
		t.Errorf("mastery without ids: status %d, want 400", code)
	}
}

func TestSessionAccessErrors(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.router(1)
	view := startSession(t, owner, "a")

	tests := []struct {
		name   string
		router *gin.Engine
		url    string
		status int
	}{
		{"missing session", owner, "/api/sessions/missing", http.StatusNotFound},
		{"other user", srv.router(2), "/api/sessions/" + view.ID, http.StatusForbidden},
		{"anonymous", srv.router(0), "/api/sessions/" + view.ID, http.StatusUnauthorized},
		{"owner", owner, "/api/sessions/" + view.ID, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := do(t, tt.router, http.MethodGet, tt.url, nil); code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	srv := newTestServer(t)
	r := srv.router(1)
	view := startSession(t, r, "a", "b")
	base := "/api/sessions/" + view.ID

	if code, _ := do(t, r, http.MethodPost, base+"/jump", gin.H{}); code != http.StatusBadRequest {
		t.Errorf("jump without index: status %d, want 400", code)
	}
	if code, _ := do(t, r, http.MethodPost, base+"/jump", gin.H{"index": 5}); code != http.StatusBadRequest {
		t.Errorf("jump out of range: status %d, want 400", code)
	}

	code, env := do(t, r, http.MethodPost, base+"/next", nil)
	if code != http.StatusOK {
		t.Fatalf("next: status %d", code)
	}
	decode(t, env.Data, &view)
	if view.Index != 1 {
		t.Errorf("index after next = %d", view.Index)
	}
	if code, _ := do(t, r, http.MethodPost, base+"/next", nil); code != http.StatusBadRequest {
		t.Errorf("next past the end: status %d, want 400", code)
	}

	code, env = do(t, r, http.MethodPost, base+"/jump", gin.H{"index": 0})
	if code != http.StatusOK {
		t.Fatalf("jump: status %d", code)
	}
	decode(t, env.Data, &view)
	if view.Index != 0 {
		t.Errorf("index after jump = %d", view.Index)
	}
}

func photoRequest(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write(content)
	mw.WriteField("solutionText", "x = 1 therefore")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadPhoto(t *testing.T) {
	srv := newTestServer(t)
	r := srv.router(1)
	view := startSession(t, r, "b")
	url := "/api/sessions/" + view.ID + "/solutions/photo"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, photoRequest(t, url, "notes.txt", []byte("just some text")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("text upload: status %d, want 400", w.Code)
	}
	if srv.storage.count() != 0 {
		t.Errorf("rejected upload was stored")
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, photoRequest(t, url, "solution.png", png))
	if w.Code != http.StatusOK {
		t.Fatalf("photo upload: status %d, %s", w.Code, w.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var payload struct {
		ImageRef string               `json:"imageRef"`
		Result   service.SubmitResult `json:"result"`
	}
	decode(t, env.Data, &payload)
	if !strings.HasPrefix(payload.ImageRef, "/uploads/solutions/"+view.ID+"/b/") || !strings.HasSuffix(payload.ImageRef, ".png") {
		t.Errorf("imageRef = %q", payload.ImageRef)
	}
	if !payload.Result.Pending || payload.Result.QuestionID != "b" {
		t.Errorf("result = %+v", payload.Result)
	}
	if srv.storage.count() != 1 {
		t.Errorf("stored objects = %d, want 1", srv.storage.count())
	}
}
