package controller

import (
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionController struct {
	SessionService *service.SessionService
	StorageService *service.StorageService
}

func NewSessionController(sessionService *service.SessionService, storageService *service.StorageService) *SessionController {
	return &SessionController{SessionService: sessionService, StorageService: storageService}
}

// StartSessionRequest 开始会话
type StartSessionRequest struct {
	Mode            string   `json:"mode" binding:"omitempty,oneof=practice exam"`
	QuestionIDs     []string `json:"questionIds"`
	Skills          []string `json:"skills"`
	Limit           int      `json:"limit" binding:"gte=0"`
	DurationSeconds int      `json:"durationSeconds" binding:"gte=0"`
}

type JumpRequest struct {
	Index *int `json:"index" binding:"required"`
}

type DraftRequest struct {
	Text string `json:"text"`
}

// SubmitAnswerRequest 填空题填 answer，解答题填 solutionText
type SubmitAnswerRequest struct {
	Answer       string `json:"answer"`
	SolutionText string `json:"solutionText"`
}

// @Summary 开始练习或模拟考试
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartSessionRequest true "会话范围"
// @Success 201 {object} util.Response{data=service.SessionView}
// @Router /api/sessions [post]
func (c *SessionController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	view, err := c.SessionService.Start(ctx.Request.Context(), service.StartRequest{
		UserID:          user.UserID,
		Mode:            model.SessionMode(req.Mode),
		QuestionIDs:     req.QuestionIDs,
		Skills:          req.Skills,
		Limit:           req.Limit,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, view)
}

// @Summary 获取会话状态
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id} [get]
func (c *SessionController) State(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.State(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 下一题
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/next [post]
func (c *SessionController) Next(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.Next(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 上一题
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/prev [post]
func (c *SessionController) Prev(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.Prev(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 跳转到指定题目
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body JumpRequest true "题目下标（从 0 开始）"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/jump [post]
func (c *SessionController) Jump(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req JumpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	view, err := c.SessionService.Jump(ctx.Request.Context(), ctx.Param("id"), user.UserID, *req.Index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存当前题目草稿
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body DraftRequest true "草稿内容"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id}/draft [put]
func (c *SessionController) SaveDraft(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req DraftRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	view, err := c.SessionService.SaveDraft(ctx.Request.Context(), ctx.Param("id"), user.UserID, req.Text)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 提交当前题目
// @Description 可重复提交，以最后一次为准；解答题立即返回临时分数，后台评分完成后覆盖
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Router /api/sessions/{id}/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SessionService.Submit(ctx.Request.Context(), ctx.Param("id"), user.UserID, service.SubmitRequest{
		Answer:       req.Answer,
		SolutionText: req.SolutionText,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 上传手写解答照片
// @Description 照片保存后作为当前题目的一次提交
// @Tags 会话
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param photo formData file true "解答照片"
// @Param answer formData string false "最终答案"
// @Param solutionText formData string false "识别出的解答文本"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/solutions/photo [post]
func (c *SessionController) UploadPhoto(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID := ctx.Param("id")
	view, err := c.SessionService.State(ctx.Request.Context(), sessionID, user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if view.Current == nil {
		respondError(ctx, util.ErrSessionNotActive)
		return
	}

	fileHeader, err := ctx.FormFile("photo")
	if err != nil {
		util.BadRequest(ctx, "photo is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	mimeType, err := util.ValidateMimeType(file, util.AllowedSolutionTypes)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	objectName := util.SolutionObjectName(sessionID, view.Current.ID, uuid.New().String(), fileHeader.Filename)
	imageRef, err := c.StorageService.Upload(ctx.Request.Context(), objectName, file, fileHeader.Size, mimeType)
	if err != nil {
		logger.Log.Error("Failed to store solution photo",
			zap.String("session_id", sessionID),
			zap.String("question_id", view.Current.ID),
			zap.Error(err),
		)
		util.InternalServerError(ctx)
		return
	}

	result, err := c.SessionService.Submit(ctx.Request.Context(), sessionID, user.UserID, service.SubmitRequest{
		Answer:           ctx.PostForm("answer"),
		SolutionText:     ctx.PostForm("solutionText"),
		SolutionImageRef: imageRef,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"imageRef": imageRef,
		"result":   result,
	})
}

// @Summary 交卷
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.Report}
// @Router /api/sessions/{id}/finish [post]
func (c *SessionController) Finish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	report, err := c.SessionService.Finish(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 成绩报告
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.Report}
// @Router /api/sessions/{id}/report [get]
func (c *SessionController) Report(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	report, err := c.SessionService.Report(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 回顾
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param index query int false "题目下标" default(0)
// @Success 200 {object} util.Response{data=service.ReviewPage}
// @Router /api/sessions/{id}/review [get]
func (c *SessionController) Review(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	index, err := strconv.Atoi(ctx.DefaultQuery("index", "0"))
	if err != nil {
		util.BadRequest(ctx, "invalid index")
		return
	}

	page, err := c.SessionService.Review(ctx.Request.Context(), ctx.Param("id"), user.UserID, index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, page)
}
