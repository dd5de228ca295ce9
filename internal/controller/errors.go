package controller

import (
	"errors"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError 把会话层错误映射为统一响应
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSessionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrSessionFinished), errors.Is(err, util.ErrSessionNotActive):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrIndexOutOfRange), errors.Is(err, util.ErrEmptyAnswer):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
